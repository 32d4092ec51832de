package debugsql

import (
	"context"
	"sync"

	"github.com/fllarpy/api-debugger/domain"
	"github.com/fllarpy/api-debugger/domain/debug"
)

var _ domain.QuerySource = (*Notifier)(nil)

// Notifier fans query-executed notifications out to subscribed hooks. Wrapped
// drivers publish to it; the collector subscribes to it.
type Notifier struct {
	mu     sync.RWMutex
	nextID uint64
	hooks  []subscription
}

type subscription struct {
	id   uint64
	hook domain.QueryHook
}

// NewNotifier returns a Notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers hook and returns a function that removes it. Calling
// the returned function more than once is harmless.
func (n *Notifier) Subscribe(hook domain.QueryHook) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.hooks = append(n.hooks, subscription{id: id, hook: hook})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.hooks {
			if s.id == id {
				n.hooks = append(n.hooks[:i:i], n.hooks[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers event to every subscribed hook in subscription order.
func (n *Notifier) Publish(ctx context.Context, event debug.QueryEvent) {
	n.mu.RLock()
	hooks := make([]domain.QueryHook, len(n.hooks))
	for i, s := range n.hooks {
		hooks[i] = s.hook
	}
	n.mu.RUnlock()

	for _, h := range hooks {
		h.OnQueryExecuted(ctx, event)
	}
}

// Len reports the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.hooks)
}
