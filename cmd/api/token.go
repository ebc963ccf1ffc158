package main

import (
	"fmt"

	"github.com/care-notify/internal/domain"
	jwtinfra "github.com/care-notify/internal/infrastructure/jwt"
	"github.com/spf13/cobra"
)

// tokenCmd issues a bearer for local testing. It needs the private key.
func tokenCmd() *cobra.Command {
	var userID, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := jwtinfra.NewProvider(cfg)
			if err != nil {
				return err
			}
			tok, err := p.Sign(userID, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", string(domain.SectionPatient), "patient or specialist")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
