package kfmt

import "github.com/CircuitOperatingSystem/circuit/kernel"

func init() {
	kernel.SetLogFn(func(msg string) {
		Printf("\n-----------------------------------\n")
		Printf("%s\n", msg)
		Printf("*** kernel panic: system halted ***\n")
		Printf("-----------------------------------\n")
	})
}
