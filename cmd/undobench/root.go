package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/undolog"
	"github.com/hupe1980/undolog/codec"
)

var (
	// Global flags
	verbose   bool
	codecName string
)

var rootCmd = &cobra.Command{
	Use:   "undobench",
	Short: "Exercise and inspect undolog partitions",
	Long: `undobench runs generated transaction workloads against undolog
partitions, committing or rolling back each transaction, and prints a report
of throughput, undo memory and pool usage.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&codecName, "codec", "go-json", "Report codec (go-json, json)")
}

func execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *undolog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return undolog.NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func writeReport(w io.Writer, v any) error {
	c, ok := codec.ByName(codecName)
	if !ok {
		return fmt.Errorf("unknown codec %q (want one of %v)", codecName, codec.Names())
	}
	return codec.Encode(w, c, v)
}
