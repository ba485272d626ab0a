package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"socialsim/server/internal/achievement"
	"socialsim/server/internal/model"
)

func newProgressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Print the persisted progress record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, logCloser, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logCloser.Close()

			store, err := openStorage(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			p := store.LoadProgress(cmd.Context())
			out := struct {
				Progress     model.UserProgress   `json:"progress"`
				Achievements []achievement.Status `json:"achievements"`
				SavedCount   int                  `json:"savedSessions"`
			}{
				Progress:     p,
				Achievements: achievement.Statuses(p),
				SavedCount:   len(store.LoadSessions(cmd.Context())),
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
