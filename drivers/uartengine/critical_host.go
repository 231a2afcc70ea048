//go:build !baremetal

package uartengine

import "sync"

// Hosted builds run the vector on an ordinary goroutine, so a mutex stands in
// for masking interrupts.
var critical sync.Mutex

type irqState struct{}

func disableIRQ() irqState { critical.Lock(); return irqState{} }

func restoreIRQ(irqState) { critical.Unlock() }
