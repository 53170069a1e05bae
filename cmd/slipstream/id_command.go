package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"slipstream/internal/disc"
)

func newIDCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "id [target]",
		Short: "Print the disc id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := ctx.resolveTarget(args)
			if err != nil {
				return err
			}
			return ctx.withSession(target, func(s *disc.Session) error {
				id, err := s.ComputeCRCID()
				if err != nil {
					return fmt.Errorf("compute disc id: %w", describeFailure(err))
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]string{
						"target":    target,
						"volume_id": s.VolumeDescriptor().VolumeID,
						"disc_id":   id.String(),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), id.String())
				return nil
			})
		},
	}
}
