package main

import (
	"github.com/care-notify/internal/infrastructure/dynamo"
	"github.com/spf13/cobra"
)

func bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the DynamoDB tables, indexes, streams and TTLs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			awsCfg, err := dynamo.LoadAWSConfig(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			dynamo.Bootstrap(cmd.Context(), dynamo.NewClient(awsCfg, cfg), cfg.DynamoTables)
			return nil
		},
	}
}
