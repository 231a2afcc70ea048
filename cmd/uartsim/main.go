// uartsim drives the UART transfer engine against simulated PL011s.
//
//	uartsim run scenario.txt
//	uartsim echo --text "hello\r\n"
//	uartsim hal --write "AT\r" --inject "OK\r\n"
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "uartsim",
	Short: "Exercise the UART transfer engine on simulated hardware",
	Long: `uartsim runs scripted scenarios and small demos against the
interrupt-driven UART engine. Every UART is a simulated PL011 with
configurable FIFO depths; the far end is driven from the script.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run [flags] script...",
	Short: "Run scenario scripts; '-' reads stdin",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			in := os.Stdin
			if path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			r := newRunner(cmd.OutOrStdout())
			if err := r.Run(in); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
		}
		return nil
	},
}

var quiet bool

func init() {
	// glog registers on the standard flag set; cobra picks up pflag's.
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print nothing on success")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(echoCmd)
	rootCmd.AddCommand(halCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
