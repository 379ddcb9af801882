package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marcus/lk/internal/output"
)

var enableCmd = &cobra.Command{
	Use:     "enable <slot>",
	GroupID: "slots",
	Short:   "Enable a slot's code",
	Args:    cobra.ExactArgs(1),
	RunE:    func(cmd *cobra.Command, args []string) error { return setStatus(args[0], true) },
}

var disableCmd = &cobra.Command{
	Use:     "disable <slot>",
	GroupID: "slots",
	Short:   "Disable a slot's code",
	Long: `Disable a slot's code.

A disabled PIN is removed from the lock on the next push; the code itself
stays cached so it can be re-enabled later.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error { return setStatus(args[0], false) },
}

func setStatus(arg string, enabled bool) error {
	slot, err := parseSlot(arg)
	if err != nil {
		return err
	}
	return withSession(func(ctx context.Context, s *session) error {
		if err := s.engine.SetStatus(ctx, slot, enabled); err != nil {
			return err
		}
		if enabled {
			output.Success("Slot %d enabled", slot)
		} else {
			output.Success("Slot %d disabled", slot)
		}
		output.Info("Run 'lk push %d' to apply the change on the lock.", slot)
		return nil
	})
}

func init() {
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}
