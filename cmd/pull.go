package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/lk/internal/hub"
	"github.com/marcus/lk/internal/output"
)

var pullVerbose bool

var pullCmd = &cobra.Command{
	Use:     "pull",
	Aliases: []string{"refresh"},
	GroupID: "sync",
	Short:   "Read every code slot from the lock",
	Long: `Read every code slot from the physical lock into the hub, then fold the
result into the local cache. Slots being edited are merged field by field so
in-flight edits are never clobbered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session) error {
			events, cancelSub, err := s.client.Subscribe(ctx)
			if err != nil {
				output.Warning("Progress events unavailable: %v", err)
			} else {
				defer cancelSub()
				go printProgress(events)
			}

			res, err := s.engine.Refresh(ctx)
			if err != nil {
				return err
			}

			if jsonOut {
				return output.JSON(res)
			}
			if !res.Confirmed {
				output.Warning("Lock state matched the cache; nothing new after %d polls", res.Polls)
			}
			for _, d := range res.Details {
				output.Info("  %s", d)
			}
			if pullVerbose {
				for _, e := range s.log.Entries() {
					output.Info("%s", e)
				}
			}
			return nil
		})
	},
}

func printProgress(events <-chan hub.SyncProgress) {
	for ev := range events {
		switch ev.Action {
		case hub.ActionStart:
			output.Info("Scanning %d slots...", ev.TotalSlots)
		case hub.ActionProgress:
			fmt.Printf("\r  slot %d/%d", ev.CurrentSlot, ev.TotalSlots)
		case hub.ActionComplete:
			fmt.Print("\r")
			output.Info("Scan complete: %d codes (%d new, %d updated)",
				ev.CodesFound, ev.CodesNew, ev.CodesUpdated)
		}
	}
}

func init() {
	pullCmd.Flags().BoolVarP(&pullVerbose, "verbose", "v", false, "print the reconciliation log")
	rootCmd.AddCommand(pullCmd)
}
