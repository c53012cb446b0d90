package main

import (
	"encoding/json"

	"github.com/fyerfyer/fyer-lock/store"
	"github.com/spf13/cobra"
)

type inspectOutput struct {
	Resource string `json:"resource"`
	Key      string `json:"key"`
	Held     bool   `json:"held"`
	TTL      string `json:"ttl,omitempty"`
}

func newInspectCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [resource]",
		Short: "Show whether a lock is held and its remaining lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			info, err := a.client.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := inspectOutput{Resource: info.Resource, Key: info.Key, Held: info.Held}
			switch {
			case info.TTL == store.NoExpiry:
				out.TTL = "none"
			case info.Held:
				out.TTL = info.TTL.String()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
