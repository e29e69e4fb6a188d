package kafka

import "sync"

// subjectLocks hands out one *sync.Mutex per subject, created lazily, so
// concurrent mutations on different subjects never block each other.
type subjectLocks struct {
	locks sync.Map // string -> *sync.Mutex
}

// LockFor returns the mutex serializing mutations on subject. The zero value
// of subjectLocks is ready to use.
func (s *subjectLocks) LockFor(subject string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(subject, &sync.Mutex{})
	return v.(*sync.Mutex)
}
