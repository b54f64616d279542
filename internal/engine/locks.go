package engine

import "sync"

// caseLocks provides per-case mutual exclusion. Operations on different case
// ids proceed in parallel; all operations for one case id serialize on the
// same mutex for the full validation + persistence + audit critical section.
type caseLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCaseLocks() *caseLocks {
	return &caseLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for caseID and returns its unlock function.
func (c *caseLocks) acquire(caseID string) func() {
	c.mu.Lock()
	m, ok := c.locks[caseID]
	if !ok {
		m = &sync.Mutex{}
		c.locks[caseID] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m.Unlock
}
