package mcpservice

import "sync"

// changeNotifier fans a coalesced "something changed" signal out to
// subscribers. Each subscriber channel has capacity one; a slow consumer
// sees at most one pending signal rather than a backlog.
type changeNotifier struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func (n *changeNotifier) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[chan struct{}]struct{})
	}
	n.subs[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *changeNotifier) unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	delete(n.subs, ch)
	n.mu.Unlock()
}

func (n *changeNotifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
