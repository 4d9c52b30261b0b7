package sync

// Mutex is a "may block" lock for interrupts-enabled contexts, as opposed
// to TicketLock which is safe from interrupt context but never suspends.
// Timed acquisition semantics are left for a real scheduler-integrated
// Mutex; until the scheduler exists this is a TicketLock in a trenchcoat
// that always waits indefinitely. It is enough to satisfy the ACPI host
// glue's create_mutex/acquire_mutex callbacks, which is the only consumer
// in the core.
type Mutex struct {
	lock TicketLock
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{lock: *NewTicketLock()}
}

// Lock blocks (today: spins) until the mutex is acquired.
//
// TODO(scheduler): once a scheduler exists, Lock should park the calling
// task instead of spinning, and Lock should grow a timeout parameter.
func (m *Mutex) Lock() *Held {
	return m.lock.Acquire()
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() (*Held, bool) {
	return m.lock.TryAcquire()
}
