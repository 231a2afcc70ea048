package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"uarthal/drivers/uartengine"
	"uarthal/drivers/uartsim"
)

var echoOpts struct {
	text   string
	txFIFO int
	rxFIFO int
}

// echoCmd loops a single simulated UART back on itself: the wire output
// of an async transmit is fed into an async receive that stops on the
// last byte.
var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Loop a transmit back into a receive on one channel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		text := data(echoOpts.text)
		if len(text) == 0 {
			return fmt.Errorf("empty --text")
		}

		nvic := uartsim.NewNVIC()
		sim := uartsim.New(echoOpts.txFIFO, echoOpts.rxFIFO)
		sim.Attach(nvic, firstIRQ)
		table := uartengine.NewTable(nvic)
		ch, err := table.Open(uartengine.Config{Name: "loop", Regs: sim, IRQ: firstIRQ})
		if err != nil {
			return err
		}
		defer table.Close(ch.ID())

		var got uartengine.Event
		rx := make([]byte, len(text))
		match := uartengine.Match(text[len(text)-1])
		if err := ch.StartRx(rx, 8, func(ev uartengine.Event) { got |= ev }, uartengine.RxEvents, match); err != nil {
			return err
		}
		if _, err := ch.StartTx(text, 8, func(ev uartengine.Event) { got |= ev }, uartengine.TxEvents); err != nil {
			return err
		}

		fires := 0
		for ch.IsTxActive() || ch.IsRxActive() {
			n := sim.Service()
			if b, ok := sim.ShiftOut(); ok {
				sim.Receive(b)
			} else if n == 0 {
				break
			}
			fires += n
		}

		st := ch.Stats()
		fmt.Fprintf(out, "sent     %q\n", text)
		fmt.Fprintf(out, "received %q (%d/%d)\n", rx[:ch.RxPos()], ch.RxPos(), len(rx))
		fmt.Fprintf(out, "events   %s\n", got)
		fmt.Fprintf(out, "fires=%d tx_irq=%d rx_irq=%d\n", fires, st.TxIRQ, st.RxIRQ)
		return nil
	},
}

func init() {
	f := echoCmd.Flags()
	f.StringVarP(&echoOpts.text, "text", "t", `hello\n`, "bytes to loop; Go escapes allowed")
	f.IntVar(&echoOpts.txFIFO, "tx-fifo", 8, "TX FIFO depth")
	f.IntVar(&echoOpts.rxFIFO, "rx-fifo", 8, "RX FIFO depth")
}
