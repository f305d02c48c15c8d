package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// 定义版本号
const Version = "2.0.0"

// options 命令行参数
type options struct {
	port         int
	connect      string
	gdbPath      string
	logFile      string
	logLevel     string
	multiSession bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "go-debug-adapter",
		Short: "Debug Adapter Protocol server for native programs",
		Long: `go-debug-adapter speaks the Debug Adapter Protocol to an IDE and drives a native
debugger (gdb) to launch or attach to C, C++ and Rust programs.

Without --port or --connect the adapter serves a single session over stdin/stdout.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupLogger(opts.logFile, opts.logLevel)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			CloseLogger()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			server := NewServer(opts.gdbPath)
			switch {
			case opts.connect != "":
				return server.Connect(cmd.Context(), opts.connect)
			case opts.port > 0:
				return server.Listen(cmd.Context(), opts.port, opts.multiSession)
			default:
				return server.ServeStdio(cmd.Context())
			}
		},
	}
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	flags := rootCmd.Flags()
	flags.IntVar(&opts.port, "port", 0, "TCP port to listen on, 0 serves over stdin/stdout")
	flags.StringVar(&opts.connect, "connect", "", "host:port of an IDE waiting for the adapter to connect")
	flags.StringVar(&opts.gdbPath, "gdb", "gdb", "path of the gdb executable")
	flags.BoolVar(&opts.multiSession, "multi-session", false, "keep listening and serve every accepted connection")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "log file, logs go to stderr when empty")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", Version)
		},
	})
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
