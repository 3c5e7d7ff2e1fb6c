package services

import "sync"

// orderLocks serializes mutating operations per order id, so two
// concurrent pickups of the same order cannot both pass the status check
// and double-submit the on-chain transaction. Operations on different
// orders proceed independently.
type orderLocks struct {
	mu    sync.Mutex
	locks map[int64]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[int64]*orderLock)}
}

func (l *orderLocks) Lock(orderID int64) {
	l.mu.Lock()
	entry, ok := l.locks[orderID]
	if !ok {
		entry = &orderLock{}
		l.locks[orderID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *orderLocks) Unlock(orderID int64) {
	l.mu.Lock()
	entry := l.locks[orderID]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, orderID)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
