package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/leonardomendes201704/ConsertaPraMim-sub004/internal/query"
)

// filtersFromRequest resolves the range token and filter query parameters
// into absolute bounds. It never fails: unknown values degrade to defaults.
func filtersFromRequest(r *http.Request, now time.Time) (query.RequestFilters, string) {
	params := r.URL.Query()
	from, to, rangeToken := query.ResolveRange(params.Get("range"), now)

	filters := query.RequestFilters{
		From:     from,
		To:       to,
		Method:   params.Get("method"),
		Endpoint: params.Get("endpoint"),
		Severity: params.Get("severity"),
		UserID:   params.Get("user"),
		TenantID: params.Get("tenant"),
		Search:   params.Get("search"),
	}
	if status, err := strconv.Atoi(params.Get("status")); err == nil && status > 0 {
		filters.StatusCode = status
	}
	if onlyErrors := params.Get("onlyErrors"); onlyErrors == "true" || onlyErrors == "1" {
		filters.OnlyErrors = true
	}
	return filters, rangeToken
}

func intParam(r *http.Request, name string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return value
}
