package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marcus/lk/internal/output"
)

var limitCmd = &cobra.Command{
	Use:     "limit <slot> <max|off>",
	GroupID: "slots",
	Short:   "Set or remove a slot's usage limit",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}

		var limit *int
		if args[1] != "off" {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid limit %q: want a non-negative number or 'off'", args[1])
			}
			limit = &n
		}

		return withSession(func(ctx context.Context, s *session) error {
			if err := s.engine.SetUsageLimit(ctx, slot, limit); err != nil {
				return err
			}
			if limit == nil {
				output.Success("Slot %d usage limit removed", slot)
			} else {
				output.Success("Slot %d limited to %d uses", slot, *limit)
			}
			return nil
		})
	},
}

var limitResetCmd = &cobra.Command{
	Use:   "reset <slot>",
	Short: "Reset a slot's usage counter to zero",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		return withSession(func(ctx context.Context, s *session) error {
			if err := s.engine.ResetUsage(ctx, slot); err != nil {
				return err
			}
			output.Success("Slot %d usage counter reset", slot)
			return nil
		})
	},
}

func init() {
	limitCmd.AddCommand(limitResetCmd)
	rootCmd.AddCommand(limitCmd)
}
