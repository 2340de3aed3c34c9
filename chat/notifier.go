package chat

import "sync"

// Invalidator is the dispatcher's view-layer notification hook: it is called
// after every persistence write so the view layer can refetch the
// conversation's lists.
type Invalidator interface {
	Invalidate(conversationID int32)
}

// InvalidatorFunc adapts a function to the Invalidator interface.
type InvalidatorFunc func(conversationID int32)

func (f InvalidatorFunc) Invalidate(conversationID int32) {
	f(conversationID)
}

// Notifier fans invalidations out to subscribers. Callbacks run on the
// dispatching goroutine and must return quickly.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[int64]func(conversationID int32)
	nextID      int64
}

func NewNotifier() *Notifier {
	return &Notifier{
		subscribers: make(map[int64]func(conversationID int32)),
	}
}

// Subscribe registers a callback and returns its cancel function.
func (n *Notifier) Subscribe(fn func(conversationID int32)) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subscribers[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subscribers, id)
		n.mu.Unlock()
	}
}

func (n *Notifier) Invalidate(conversationID int32) {
	n.mu.RLock()
	subscribers := make([]func(int32), 0, len(n.subscribers))
	for _, fn := range n.subscribers {
		subscribers = append(subscribers, fn)
	}
	n.mu.RUnlock()

	for _, fn := range subscribers {
		fn(conversationID)
	}
}
