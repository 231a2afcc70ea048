package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"uarthal/bus"
	"uarthal/services/hal"
	"uarthal/types"
)

var halOpts struct {
	bus     string
	name    string
	write   string
	inject  string
	match   string
	timeout time.Duration
}

// halCmd runs the HAL service over the host board and talks to one uart
// capability the way a bus client would.
var halCmd = &cobra.Command{
	Use:   "hal",
	Short: "Run the HAL on the simulated board and drive a uart capability",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		ctx, cancel := context.WithTimeout(cmd.Context(), halOpts.timeout)
		defer cancel()

		b := bus.NewBus(16)
		board := hal.NewBoard()
		go hal.RunBoard(ctx, b.NewConnection("hal"), board)

		ui := b.NewConnection("uartsim")
		state := ui.Subscribe(hal.StateTopic())
		events := ui.Subscribe(hal.EventTopic("io", types.KindUART, halOpts.name, "#"))
		ui.Publish(ui.NewMessage(hal.ConfigTopic(), hal.InitialConfig(), true))
		if err := waitReady(ctx, state); err != nil {
			return err
		}

		sim := board.Sim(halOpts.bus)
		if sim == nil {
			return fmt.Errorf("no simulated bus %q", halOpts.bus)
		}

		if halOpts.inject != "" {
			in := data(halOpts.inject)
			rd := types.UARTRead{Len: len(in)}
			if m := data(halOpts.match); len(m) == 1 {
				rd.Match, rd.UseMatch = m[0], true
			}
			if err := control(ctx, ui, "read", rd); err != nil {
				return err
			}
		}
		if halOpts.write != "" {
			if err := control(ctx, ui, "write", types.UARTWrite{Data: data(halOpts.write)}); err != nil {
				return err
			}
		}
		board.Pump()
		if halOpts.inject != "" {
			sim.Receive(data(halOpts.inject)...)
			board.Pump()
		}
		fmt.Fprintf(out, "wire %q\n", sim.TakeWire())

		for {
			select {
			case m := <-events.Channel():
				fmt.Fprintf(out, "%s %+v\n", topicString(m.Topic), m.Payload)
			case <-time.After(100 * time.Millisecond):
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	},
}

func init() {
	f := halCmd.Flags()
	f.StringVar(&halOpts.bus, "bus", "uart0", "simulated bus behind the capability")
	f.StringVar(&halOpts.name, "name", "uart0", "uart capability name")
	f.StringVarP(&halOpts.write, "write", "w", "", "bytes to transmit")
	f.StringVarP(&halOpts.inject, "inject", "i", "", "bytes the far end sends; arms a read of the same length")
	f.StringVarP(&halOpts.match, "match", "m", "", "character match for the read")
	f.DurationVar(&halOpts.timeout, "timeout", 5*time.Second, "overall deadline")
}

func waitReady(ctx context.Context, sub *bus.Subscription) error {
	for {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.HALState); ok && st.Level == "ready" {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("hal not ready: %w", ctx.Err())
		}
	}
}

func control(ctx context.Context, c *bus.Connection, verb string, payload any) error {
	t := hal.ControlTopic("io", types.KindUART, halOpts.name, verb)
	reply, err := c.RequestWait(ctx, c.NewMessage(t, payload, false))
	if err != nil {
		return err
	}
	if e, ok := reply.Payload.(types.ErrorReply); ok {
		return fmt.Errorf("%s: %s", verb, e.Error)
	}
	return nil
}

func topicString(t bus.Topic) string {
	parts := make([]string, t.Len())
	for i := range parts {
		parts[i] = fmt.Sprint(t.At(i))
	}
	return strings.Join(parts, "/")
}
