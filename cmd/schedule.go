package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marcus/lk/internal/models"
	"github.com/marcus/lk/internal/output"
)

var (
	schedStart string
	schedEnd   string
	schedClear bool
)

var scheduleCmd = &cobra.Command{
	Use:     "schedule <slot>",
	GroupID: "slots",
	Short:   "Set or clear a slot's validity window",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}

		var sched models.Schedule
		if !schedClear {
			parsed, err := parseScheduleFlags(schedStart, schedEnd)
			if err != nil {
				return err
			}
			if parsed == nil {
				return cmd.Help()
			}
			sched = *parsed
		}

		return withSession(func(ctx context.Context, s *session) error {
			if err := s.engine.SetSchedule(ctx, slot, sched); err != nil {
				return err
			}
			if schedClear {
				output.Success("Slot %d schedule cleared", slot)
			} else {
				output.Success("Slot %d valid %s", slot, output.FormatSchedule(sched))
			}
			return nil
		})
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&schedStart, "start", "", "schedule start time")
	scheduleCmd.Flags().StringVar(&schedEnd, "end", "", "schedule end time")
	scheduleCmd.Flags().BoolVar(&schedClear, "clear", false, "remove the schedule")
	rootCmd.AddCommand(scheduleCmd)
}
