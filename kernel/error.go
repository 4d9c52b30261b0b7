// Package kernel contains the error and panic plumbing shared by every core
// subsystem. It exists because the usual `errors.New` and `panic` machinery
// assumes a heap and a scheduler that do not exist yet this early in boot.
package kernel

// Error describes a kernel error. All kernel errors are defined as package
// level variables holding a pointer to an Error so that constructing one
// never needs an allocation: the Go allocator is not available until the
// heap package (built on top of the resource arena) has been initialized.
type Error struct {
	// Module is the subsystem that produced the error, e.g. "pmm" or "vmem".
	Module string

	// Message describes what went wrong.
	Message string
}

// Error implements the error interface so that an *Error can be passed to
// anything that accepts a standard Go error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "[" + e.Module + "] " + e.Message
}
