package notification

import (
	"sync"

	notificationdomain "github.com/smallbiznis/duno/internal/notification/domain"
)

// Registry maps queue names to handlers. Registration happens during fx
// startup, before the poller begins claiming.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]notificationdomain.Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]notificationdomain.Handler{}}
}

func (r *Registry) Register(queueName string, handler notificationdomain.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[queueName]; ok {
		return notificationdomain.ErrHandlerExists
	}
	r.handlers[queueName] = handler
	return nil
}

func (r *Registry) Lookup(queueName string) (notificationdomain.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[queueName]
	return handler, ok
}
