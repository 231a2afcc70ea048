//go:build baremetal

package uartengine

import "runtime/interrupt"

type irqState = interrupt.State

func disableIRQ() irqState { return interrupt.Disable() }

func restoreIRQ(s irqState) { interrupt.Restore(s) }
