package main

import (
	"errors"

	"github.com/care-notify/internal/application/cleanup"
	"github.com/care-notify/internal/application/dedup"
	"github.com/care-notify/internal/infrastructure/dynamo"
	s3infra "github.com/care-notify/internal/infrastructure/s3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func cleanupCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune one user's old notifications and processed keys once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			awsCfg, err := dynamo.LoadAWSConfig(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			db := dynamo.NewClient(awsCfg, cfg)
			guard := dedup.NewGuard(dynamo.NewProcessedKeyRepo(db, cfg.DynamoTables.ProcessedKeys), days(cfg.ProcessedKeyRetentionDays))

			var archive cleanup.Archiver
			if cfg.ArchiveBucket != "" {
				archive = s3infra.NewArchive(s3infra.NewClient(awsCfg, cfg), cfg.ArchiveBucket)
			}

			task := cleanup.NewTask(userID, dynamo.NewNotificationRepo(db, cfg.DynamoTables.Notifications), guard, archive, cleanupOptions(cfg), nil)
			res := task.RunOnce(cmd.Context())
			log.Info().
				Str("user_id", userID).
				Int("notifications", res.Notifications).
				Int("keys", res.Keys).
				Msg("cleanup finished")
			return errors.Join(res.NotificationsErr, res.KeysErr)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to prune")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
