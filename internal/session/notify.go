package session

import "sync"

// notifier runs callbacks one at a time, in order, on its own goroutine, so a callback may call back
// into the controller (Leave from OnDisconnected, for instance) without deadlocking event delivery.
type notifier struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{wake: make(chan struct{}, 1)}
	go n.run()
	return n
}

func (n *notifier) post(fn func()) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, fn)
	n.mu.Unlock()
	n.signal()
}

// close lets the goroutine exit once everything already posted has run.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.signal()
}

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	for range n.wake {
		for {
			n.mu.Lock()
			if len(n.queue) == 0 {
				closed := n.closed
				n.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := n.queue[0]
			n.queue[0] = nil
			n.queue = n.queue[1:]
			n.mu.Unlock()
			fn()
		}
	}
}
