package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot DEST",
		Short: "Copy the database file to DEST (zstd-compressed when DEST ends in .zst)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SnapshotTo(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot written to %s\n", args[0])
			return nil
		},
	}
}
