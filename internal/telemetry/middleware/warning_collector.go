package middleware

import (
	"context"
	"net/http"
	"sync"
)

type warningCollectorKey struct{}

// WarningCollector lets handlers attach non-fatal warning codes to the
// in-flight request. Collected codes raise the request severity to warn.
type WarningCollector struct {
	mu    sync.Mutex
	codes []string
}

func newWarningCollector() *WarningCollector {
	return &WarningCollector{}
}

func (wc *WarningCollector) Add(code string) {
	if code == "" {
		return
	}
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.codes = append(wc.codes, code)
}

func (wc *WarningCollector) Codes() []string {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	codes := make([]string, len(wc.codes))
	copy(codes, wc.codes)
	return codes
}

func withWarningCollector(ctx context.Context, wc *WarningCollector) context.Context {
	return context.WithValue(ctx, warningCollectorKey{}, wc)
}

// AddWarning records a warning code against the current request. It is a
// no-op when the request is not instrumented.
func AddWarning(r *http.Request, code string) {
	if wc, ok := r.Context().Value(warningCollectorKey{}).(*WarningCollector); ok {
		wc.Add(code)
	}
}
