package ledger

import "sync"

// ticketLocks hands out one mutex per ticket and forgets it once nobody
// holds or waits for it.
type ticketLocks struct {
	mu    sync.Mutex
	locks map[string]*ticketLock
}

type ticketLock struct {
	mu   sync.Mutex
	refs int
}

func newTicketLocks() *ticketLocks {
	return &ticketLocks{locks: make(map[string]*ticketLock)}
}

// Lock blocks until the ticket is free and returns the matching unlock.
func (l *ticketLocks) Lock(ticketID string) func() {
	l.mu.Lock()
	tl, ok := l.locks[ticketID]
	if !ok {
		tl = &ticketLock{}
		l.locks[ticketID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()

		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, ticketID)
		}
		l.mu.Unlock()
	}
}

func (l *ticketLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
