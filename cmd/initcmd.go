package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/lk/internal/config"
	"github.com/marcus/lk/internal/output"
)

var (
	initHubURL string
	initToken  string
	initEntity string
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "system",
	Short:   "Create or update the lk configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(getBaseDir())
		if err != nil {
			return err
		}

		if initHubURL != "" {
			cfg.HubURL = initHubURL
		}
		if initToken != "" {
			cfg.Token = initToken
		}
		if initEntity != "" {
			cfg.EntityID = initEntity
		}

		// Prompt for anything still missing unless all flags were given.
		if initHubURL == "" || initToken == "" {
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("Hub websocket URL").
					Placeholder("ws://homeassistant.local:8123/api/websocket").
					Value(&cfg.HubURL),
				huh.NewInput().
					Title("Access token").
					EchoMode(huh.EchoModePassword).
					Value(&cfg.Token),
				huh.NewInput().
					Title("Lock entity ID").
					Value(&cfg.EntityID),
			))
			if err := form.Run(); err != nil {
				return err
			}
		}

		cfg.HubURL = strings.TrimSpace(cfg.HubURL)
		cfg.Token = strings.TrimSpace(cfg.Token)
		cfg.EntityID = strings.TrimSpace(cfg.EntityID)
		if cfg.EntityID == "" {
			cfg.EntityID = config.DefaultEntityID
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := config.Save(getBaseDir(), cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		output.Success("Config written to %s", getBaseDir())
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initHubURL, "hub-url", "", "hub websocket URL")
	initCmd.Flags().StringVar(&initToken, "token", "", "hub access token")
	initCmd.Flags().StringVar(&initEntity, "entity", "", "lock entity ID")
	rootCmd.AddCommand(initCmd)
}
