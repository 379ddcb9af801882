package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marcus/lk/internal/output"
)

var cacheRemote bool

var cacheCmd = &cobra.Command{
	Use:     "cache",
	GroupID: "sync",
	Short:   "Manage the local slot cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all cached slot records",
	Long: `Drop all cached slot records for the configured entity.

Names, schedules, and codes the lock cannot report will be lost; the next
'lk pull' rebuilds the cache from whatever the lock holds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session) error {
			if err := s.store.Clear(s.cfg.EntityID); err != nil {
				return err
			}
			if cacheRemote {
				if err := s.client.ClearLocalCache(ctx); err != nil {
					return err
				}
			}
			output.Success("Cache cleared for %s", s.cfg.EntityID)
			return nil
		})
	},
}

func init() {
	cacheClearCmd.Flags().BoolVar(&cacheRemote, "remote", false, "also clear the hub's cached view")
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
