package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/lk/internal/output"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:     "clear <slot>",
	Aliases: []string{"rm"},
	GroupID: "codes",
	Short:   "Remove a code from a slot",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}

		return withSession(func(ctx context.Context, s *session) error {
			if !clearYes {
				name := s.engine.Form().Name(slot, "")
				title := fmt.Sprintf("Remove the code in slot %d?", slot)
				if name != "" {
					title = fmt.Sprintf("Remove %q from slot %d?", name, slot)
				}
				var ok bool
				form := huh.NewForm(huh.NewGroup(
					huh.NewConfirm().Title(title).Affirmative("Remove").Negative("Cancel").Value(&ok),
				))
				if err := form.Run(); err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

			if err := s.engine.Clear(ctx, slot); err != nil {
				return err
			}
			output.Success("Slot %d cleared", slot)
			return nil
		})
	},
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(clearCmd)
}
