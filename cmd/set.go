package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/lk/internal/models"
	"github.com/marcus/lk/internal/output"
	"github.com/marcus/lk/internal/reconcile"
)

var (
	setName     string
	setCode     string
	setType     string
	setDisabled bool
	setStart    string
	setEnd      string
	setLimit    int
	setForce    bool
)

var setCmd = &cobra.Command{
	Use:     "set <slot>",
	GroupID: "codes",
	Short:   "Save a code to a slot",
	Long: `Save a user code to a slot on the hub.

If the slot already holds a code the hub does not recognize, the save is
rejected and lk asks for confirmation before overwriting it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}

		in := reconcile.SaveInput{
			Slot:     slot,
			Name:     setName,
			Code:     setCode,
			CodeType: models.CodeType(setType),
			Enabled:  !setDisabled,
		}
		sched, err := parseScheduleFlags(setStart, setEnd)
		if err != nil {
			return err
		}
		in.Schedule = sched
		if cmd.Flags().Changed("limit") {
			in.UsageLimit = &setLimit
		}

		return withSession(func(ctx context.Context, s *session) error {
			res, err := s.engine.Save(ctx, in)
			if err != nil {
				return err
			}

			if res.Conflict {
				if !setForce {
					confirmed, err := confirmOverwrite(slot)
					if err != nil {
						return err
					}
					if !confirmed {
						output.Info("Slot %d left untouched", slot)
						return nil
					}
				}
				if res, err = s.engine.SaveWithOverride(ctx, in); err != nil {
					return err
				}
			}

			if jsonOut {
				return output.JSON(res)
			}
			output.Success("Slot %d saved (%s)", slot, output.SyncBadge(res.State))
			if res.State == models.NeedsPush {
				output.Info("Run 'lk push %d' to write the code to the lock.", slot)
			}
			return nil
		})
	},
}

func confirmOverwrite(slot int) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Slot %d holds a code the hub does not recognize.", slot)).
			Description("Overwriting will permanently replace whatever is on the lock.").
			Affirmative("Overwrite").
			Negative("Cancel").
			Value(&ok),
	))
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

// parseScheduleFlags builds a schedule from --start/--end, nil when unset.
func parseScheduleFlags(start, end string) (*models.Schedule, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	sched := &models.Schedule{}
	if start != "" {
		t, err := parseWhen(start)
		if err != nil {
			return nil, fmt.Errorf("invalid --start: %w", err)
		}
		sched.Start = &t
	}
	if end != "" {
		t, err := parseWhen(end)
		if err != nil {
			return nil, fmt.Errorf("invalid --end: %w", err)
		}
		sched.End = &t
	}
	return sched, nil
}

func parseWhen(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("want RFC3339 or '2006-01-02 15:04', got %q", s)
}

func init() {
	setCmd.Flags().StringVarP(&setName, "name", "n", "", "user name for the slot (required)")
	setCmd.Flags().StringVarP(&setCode, "code", "c", "", "PIN code")
	setCmd.Flags().StringVarP(&setType, "type", "t", "pin", "code type: pin or fob")
	setCmd.Flags().BoolVar(&setDisabled, "disabled", false, "save the code disabled")
	setCmd.Flags().StringVar(&setStart, "start", "", "schedule start time")
	setCmd.Flags().StringVar(&setEnd, "end", "", "schedule end time")
	setCmd.Flags().IntVar(&setLimit, "limit", 0, "maximum number of uses")
	setCmd.Flags().BoolVar(&setForce, "force", false, "overwrite an occupied slot without asking")
	setCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(setCmd)
}
