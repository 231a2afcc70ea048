// Package uartengine is an interrupt-driven, non-blocking UART transfer
// engine layered over a small register shim.
//
// Each physical UART is a Channel held in a fixed-capacity Table. The
// foreground arms a transfer with StartTx or StartRx; from then on the vector
// registered for the channel is the only writer of the transfer position and
// the event accumulator until the transfer completes, errors, or the
// foreground aborts it. Arming and aborting run with interrupts masked, so
// once AbortTx or AbortRx returns the vector no longer touches the buffer.
//
// Completion, character match and receive errors are reported as Event bits,
// either through the Callback passed to Start* (invoked after the critical
// section is left) or by PollAndClearEvents. TxComplete and RxComplete are
// always recorded; a callback only sees the bits that were requested, and
// the others stay for the poll. Match and error bits are recorded only when
// requested.
//
// Getc and Putc are the blocking fallback. They spin without a deadline;
// GetcContext and PutcContext add cancellation.
package uartengine
