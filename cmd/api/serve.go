package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/care-notify/internal/application/cleanup"
	"github.com/care-notify/internal/application/dedup"
	"github.com/care-notify/internal/application/message"
	"github.com/care-notify/internal/application/minting"
	"github.com/care-notify/internal/application/session"
	"github.com/care-notify/internal/config"
	"github.com/care-notify/internal/infrastructure/dynamo"
	jwtinfra "github.com/care-notify/internal/infrastructure/jwt"
	"github.com/care-notify/internal/infrastructure/names"
	redisinfra "github.com/care-notify/internal/infrastructure/redis"
	s3infra "github.com/care-notify/internal/infrastructure/s3"
	"github.com/care-notify/internal/infrastructure/sns"
	"github.com/care-notify/internal/infrastructure/stream"
	"github.com/care-notify/internal/pkg/metrics"
	transporthttp "github.com/care-notify/internal/transport/http"
	"github.com/care-notify/internal/transport/http/handler"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the change-stream followers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func serve(ctx context.Context, cfg *config.Config) error {
	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}
	db := dynamo.NewClient(awsCfg, cfg)
	if cfg.IsDevelopment() {
		dynamo.Bootstrap(ctx, db, cfg.DynamoTables)
	}

	verifier, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	m := metrics.New("care_notify")
	tables := cfg.DynamoTables
	notifications := dynamo.NewNotificationRepo(db, tables.Notifications)
	checks := map[string]handler.Checker{"dynamodb": dynamo.NewTableCheck(db, tables.Notifications)}

	g, ctx := errgroup.WithContext(ctx)

	hub := stream.NewHub()
	if cfg.RedisURL != "" {
		bridge, err := redisinfra.NewBridge(ctx, cfg.RedisURL, cfg.RedisChannel, hub)
		if err != nil {
			return err
		}
		defer bridge.Close()
		hub.SetRelay(bridge)
		checks["redis"] = bridge
		g.Go(func() error { return bridge.Run(ctx) })
	}
	if !cfg.StreamsEnabled && !cfg.IsDevelopment() {
		log.Warn().Str("env", cfg.AppEnv).Msg("change streams disabled: writes from other services will not reach open sessions")
	}
	if cfg.StreamsEnabled {
		poller := stream.NewPoller(stream.NewStreamsClient(awsCfg, cfg), db, hub, cfg.StreamPollInterval, m,
			stream.NotificationsSource(tables.Notifications),
			stream.MedicalHistorySource(tables.MedicalHistory),
			stream.AppointmentsSource(tables.Appointments),
			stream.ReferralsSource(tables.Referrals),
		)
		g.Go(func() error { return poller.Run(ctx) })
	}

	guard := dedup.NewGuard(dynamo.NewProcessedKeyRepo(db, tables.ProcessedKeys), days(cfg.ProcessedKeyRetentionDays))

	var push minting.PushSender
	if cfg.SNSTopicARN != "" {
		push = sns.NewPublisher(sns.NewClient(awsCfg, cfg), cfg.SNSTopicARN)
	}
	var archive cleanup.Archiver
	if cfg.ArchiveBucket != "" {
		archive = s3infra.NewArchive(s3infra.NewClient(awsCfg, cfg), cfg.ArchiveBucket)
	}

	resolver := names.NewClinicResolver(dynamo.NewClinicRepo(db, tables.Clinics), cfg.ClinicNameCacheTTL, m)
	sessions := session.NewManager(session.Deps{
		Feed:      notifications,
		Changes:   hub,
		Processor: message.NewProcessor(resolver),
		Minter:    minting.NewFactory(notifications, guard, hub, push, m),
		Sources: minting.Sources{
			History:      dynamo.NewMedicalHistoryRepo(db, tables.MedicalHistory),
			Appointments: dynamo.NewAppointmentRepo(db, tables.Appointments),
			Referrals:    dynamo.NewReferralRepo(db, tables.Referrals),
		},
		Pruner:   notifications,
		Guard:    guard,
		Archive:  archive,
		PageSize: cfg.FeedPageSize,
		Cleanup:  cleanupOptions(cfg),
		Metrics:  m,
	})
	defer sessions.Close()

	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		Sessions: sessions,
		Verifier: verifier,
		Metrics:  m,
		Checks:   checks,
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.AppPort),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: /v1/feed/events holds the response open.
		IdleTimeout: 60 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("port", cfg.AppPort).Str("env", cfg.AppEnv).Bool("streams", cfg.StreamsEnabled).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		// Ends open event streams so Shutdown does not wait on them.
		sessions.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info().Msg("server stopped")
	return err
}

func cleanupOptions(cfg *config.Config) cleanup.Options {
	return cleanup.Options{
		NotificationRetentionDays: cfg.NotificationRetentionDays,
		KeyRetentionDays:          cfg.ProcessedKeyRetentionDays,
		Interval:                  cfg.CleanupInterval,
	}
}
