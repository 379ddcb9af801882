package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/lk/internal/output"
)

var (
	listLong      bool
	listShowCodes bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "codes"},
	GroupID: "codes",
	Short:   "List code slots with sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session) error {
			sums, err := s.engine.Overview(ctx)
			if err != nil {
				return err
			}

			if jsonOut {
				return output.JSON(sums)
			}
			if len(sums) == 0 {
				output.Info("No codes. Use 'lk set <slot>' to add one or 'lk pull' to read the lock.")
				return nil
			}
			if listLong {
				for i, sum := range sums {
					if i > 0 {
						fmt.Println()
					}
					fmt.Print(output.FormatSlotLong(sum, listShowCodes))
				}
				return nil
			}
			fmt.Println(output.ListHeader())
			for _, sum := range sums {
				fmt.Println(output.FormatSlotLine(sum, listShowCodes))
			}
			return nil
		})
	},
}

func init() {
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "show full slot details")
	listCmd.Flags().BoolVar(&listShowCodes, "show-codes", false, "print codes in cleartext")
	rootCmd.AddCommand(listCmd)
}
