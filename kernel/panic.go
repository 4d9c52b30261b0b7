package kernel

// haltFn is invoked by Panic after it has printed the panic reason. It is
// set through SetHaltFn, which hal.SetArch calls once the hal.Arch
// implementation is registered; tests substitute a function that records the call instead of
// stopping the host process.
var haltFn = func() {}

// SetHaltFn registers the function Panic calls to stop the current CPU once
// it has finished reporting an unrecoverable error. Production code wires
// this to hal.Arch.DisableAndHalt during stage 1 of the SMP sequencer.
func SetHaltFn(fn func()) {
	if fn != nil {
		haltFn = fn
	}
}

// logFn receives the formatted panic banner. Defaults to a no-op so that
// packages importing kernel before kfmt has registered a sink do not crash;
// kfmt.init registers the real implementation.
var logFn = func(string) {}

// SetLogFn registers the function used to report a panic's message.
func SetLogFn(fn func(string)) {
	if fn != nil {
		logFn = fn
	}
}

// Assert panics with a programming-error Error if cond is false. Used
// throughout the core for caller bugs and invariant violations: re-entrant
// lock acquisition, releasing a lock the current CPU does not hold,
// deallocating an unknown arena base, and so on. These are not recoverable
// error returns because by the time they are observed the data structure
// they protect is no longer trustworthy.
func Assert(cond bool, module, message string) {
	if !cond {
		Panic(&Error{Module: module, Message: message})
	}
}

// Panic reports err (if non-nil) and halts the current CPU. It never
// returns. Production code reaches Panic only through Assert or through a
// handful of call sites that have determined a fault is unrecoverable (e.g.
// a boot stage returning an error, or acpi.Host.Map failing to map a page).
func Panic(err *Error) {
	if err != nil {
		logFn(err.Error())
	} else {
		logFn("unrecoverable error: <nil>")
	}
	haltFn()
}
