package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marcus/lk/internal/models"
	"github.com/marcus/lk/internal/output"
)

var pushCmd = &cobra.Command{
	Use:     "push <slot>",
	GroupID: "sync",
	Short:   "Write a slot's code and status to the lock",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		return withSession(func(ctx context.Context, s *session) error {
			if err := s.engine.Push(ctx, slot); err != nil {
				return err
			}
			return reportSlotState(ctx, s, slot)
		})
	},
}

// reportSlotState prints the slot's sync state after a sync operation.
func reportSlotState(ctx context.Context, s *session, slot int) error {
	sums, err := s.engine.Overview(ctx)
	if err != nil {
		return err
	}
	for _, sum := range sums {
		if sum.Slot != slot {
			continue
		}
		if jsonOut {
			return output.JSON(sum)
		}
		if sum.State == models.Synced {
			output.Success("Slot %d is in sync with the lock", slot)
		} else {
			output.Warning("Slot %d reports %s", slot, sum.State)
		}
		return nil
	}
	output.Warning("Slot %d is not reported by the hub", slot)
	return nil
}

func init() {
	rootCmd.AddCommand(pushCmd)
}
