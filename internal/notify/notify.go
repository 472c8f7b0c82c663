// Package notify broadcasts cache-change events to in-process listeners
// (UI refresh, log sinks). Delivery is best-effort: a slow listener drops
// events rather than stalling a sync pass.
package notify

import "sync"

// Event signals that cached emails changed for an account. EmailIDs lists
// the affected local ids; it is empty for account-level events such as a
// completed sync pass after account addition.
type Event struct {
	AccountID string
	EmailIDs  []int64
}

// Bus fans Event values out to subscribers.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func must be called
// to release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// EmailsUpdated publishes a change event for an account.
func (b *Bus) EmailsUpdated(accountID string, emailIDs []int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- Event{AccountID: accountID, EmailIDs: emailIDs}:
		default:
		}
	}
}
