package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTryCmd(flags *globalFlags) *cobra.Command {
	var release bool
	cmd := &cobra.Command{
		Use:   "try [resource]",
		Short: "Try to acquire the lock once without waiting",
		Long: `Try to acquire the lock once. On success the token is printed and the
lock stays held until its lease expires, unless --release is given. The
token can be used with the admin API to release it early.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			l, err := a.client.TryLock(ctx, args[0])
			if err != nil {
				return err
			}
			if !l.Locked() {
				fmt.Fprintf(cmd.OutOrStdout(), "busy key=%s\n", l.Key())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "acquired key=%s token=%s\n", l.Key(), l.Token())
			if release {
				if err := l.Unlock(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "released key=%s\n", l.Key())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&release, "release", false, "release right after acquiring")
	return cmd
}
