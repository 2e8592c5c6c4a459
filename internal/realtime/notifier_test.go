package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakeSubscriber struct {
	mu       sync.Mutex
	payloads [][]byte
	failing  bool
	closed   bool
}

func (fs *fakeSubscriber) Send(payload []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.failing {
		return assert.AnError
	}
	fs.payloads = append(fs.payloads, payload)
	return nil
}

func (fs *fakeSubscriber) Close() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.closed = true
}

func (fs *fakeSubscriber) received() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.payloads)
}

func (fs *fakeSubscriber) lastPayload() []byte {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.payloads) == 0 {
		return nil
	}
	return fs.payloads[len(fs.payloads)-1]
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHub(t *testing.T) {
	t.Run("broadcasts to every subscriber", func(t *testing.T) {
		hub := NewHub()
		first := &fakeSubscriber{}
		second := &fakeSubscriber{}
		hub.Register(first)
		hub.Register(second)

		hub.Broadcast([]byte("hello"))
		waitFor(t, func() bool { return first.received() == 1 && second.received() == 1 })
	})

	t.Run("drops subscribers whose send fails", func(t *testing.T) {
		hub := NewHub()
		healthy := &fakeSubscriber{}
		broken := &fakeSubscriber{failing: true}
		hub.Register(healthy)
		hub.Register(broken)

		hub.Broadcast([]byte("one"))
		hub.Broadcast([]byte("two"))
		waitFor(t, func() bool { return healthy.received() == 2 })
		assert.Equal(t, 0, broken.received())
	})

	t.Run("unregistered subscribers stop receiving", func(t *testing.T) {
		hub := NewHub()
		subscriber := &fakeSubscriber{}
		hub.Register(subscriber)
		hub.Unregister(subscriber)

		hub.Broadcast([]byte("after"))
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 0, subscriber.received())
	})
}

func TestBusNotifier(t *testing.T) {
	t.Run("flush notifications reach hub subscribers", func(t *testing.T) {
		logger := zaptest.NewLogger(t)
		hub := NewHub()
		bus := NewNotificationBus(EventBus.New(), logger)
		assert.NoError(t, ForwardToHub(bus, hub, logger))

		subscriber := &fakeSubscriber{}
		hub.Register(subscriber)

		notifier := NewBusNotifier(bus, logger)
		notifier.NotifyUpdated("raw-flush", 42)

		waitFor(t, func() bool { return subscriber.received() == 1 })

		var notification UpdateNotification
		assert.NoError(t, json.Unmarshal(subscriber.lastPayload(), &notification))
		assert.Equal(t, "raw-flush", notification.Scope)
		assert.Equal(t, 42, notification.Count)
		assert.False(t, notification.AtUTC.IsZero())
	})
}
