package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	flagNoColor bool
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "lazybin",
		Short: "Inspect compiled code containers",
		Long: "Lazybin inspects compiled code containers: header and unit summaries,\n" +
			"string and object tables, disassembly, and integrity checks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			processGlobalFlags()
		},
	}
	root.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newInfoCommand(),
		newDisCommand(),
		newStringsCommand(),
		newVerifyCommand(),
		newVersionCommand(),
	)

	if err := root.Execute(); err != nil {
		fatal(err)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lazybin %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// Reads global flags and adjusts the environment accordingly.
func processGlobalFlags() {
	if flagNoColor || env.Bool("NO_COLOR") || !isTerminalOut() {
		color.NoColor = true
	}
}

func isTerminalOut() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func fatal(msg any) {
	var s string
	switch msg := msg.(type) {
	case string:
		s = msg
	case error:
		s = msg.Error()
	default:
		s = fmt.Sprintf("%v", msg)
	}
	fmt.Fprintf(os.Stderr, "%s\n", color.RedString("%s", s))
	os.Exit(1)
}
