package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marcus/lk/internal/hub"
	"github.com/marcus/lk/internal/output"
	"github.com/marcus/lk/pkg/monitor"
)

var monitorCmd = &cobra.Command{
	Use:     "monitor",
	Aliases: []string{"ui"},
	GroupID: "system",
	Short:   "Interactive slot monitor and editor",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session) error {
			var events <-chan hub.SyncProgress
			if ch, cancelSub, err := s.client.Subscribe(ctx); err == nil {
				defer cancelSub()
				events = ch
			} else {
				output.Warning("Progress events unavailable: %v", err)
			}
			// The TUI owns all terminal output from here.
			s.engine.SetNotify(func(string) {})
			return monitor.Run(s.engine, s.log, s.cfg.EntityID, events)
		})
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}
