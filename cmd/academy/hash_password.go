package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learnpath/academy-hub/internal/application/auth"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for the admin credential file",
	Args:  cobra.MaximumNArgs(1),
	// Needs no configuration.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		pw := ""
		if len(args) == 1 {
			pw = args[0]
		} else {
			var err error
			if pw, err = readPassword(cmd); err != nil {
				return err
			}
		}
		hash, err := auth.HashPassword(pw)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}
