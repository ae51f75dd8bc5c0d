package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hupe1980/undolog/pool"
)

type sizeClassRow struct {
	Size  int    `json:"size"`
	Class int    `json:"class,omitempty"`
	Waste int    `json:"waste_bytes,omitempty"`
	Error string `json:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(newSizeClassCmd())
}

func newSizeClassCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sizeclass <size>...",
		Short: "Show the pool size class for byte sizes",
		Long: `The sizeclass command prints the pool size class that variable-length
requests, such as arena chunks, are rounded up to.

Example:
  undobench sizeclass 100 5000 262144`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([]sizeClassRow, 0, len(args))
			for _, arg := range args {
				n, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid size %q: %w", arg, err)
				}
				row := sizeClassRow{Size: n}
				if class, err := pool.SizeClass(n); err != nil {
					row.Error = err.Error()
				} else {
					row.Class = class
					row.Waste = class - n
				}
				rows = append(rows, row)
			}
			return writeReport(cmd.OutOrStdout(), rows)
		},
	}
}
