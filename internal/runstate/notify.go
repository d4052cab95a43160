package runstate

import "sync"

// notifier fans out change signals to observers. Each subscriber channel
// holds at most one pending signal, so bursts of changes coalesce and a slow
// observer never blocks the machine. Observers read the latest Snapshot on
// every signal.
type notifier struct {
	mu          sync.Mutex
	subscribers map[chan struct{}]struct{}
	closed      bool
}

func newNotifier() *notifier {
	return &notifier{subscribers: make(map[chan struct{}]struct{})}
}

// subscribe returns a signal channel primed with one pending signal and a
// function that removes it. The channel is closed when the notifier closes.
func (n *notifier) subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	n.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if _, ok := n.subscribers[ch]; ok {
				delete(n.subscribers, ch)
				close(ch)
			}
		})
	}
}

func (n *notifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending.
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for ch := range n.subscribers {
		delete(n.subscribers, ch)
		close(ch)
	}
}

func (n *notifier) len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subscribers)
}
