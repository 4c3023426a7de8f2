package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RallyPointLabs/rallypoint/backend/internal/auth"
	"github.com/RallyPointLabs/rallypoint/backend/internal/config"
	"github.com/RallyPointLabs/rallypoint/backend/internal/database"
	"github.com/RallyPointLabs/rallypoint/backend/internal/governance"
	"github.com/RallyPointLabs/rallypoint/backend/internal/logging"
	"github.com/RallyPointLabs/rallypoint/backend/internal/metrics"
	"github.com/RallyPointLabs/rallypoint/backend/internal/notifications"
	"github.com/RallyPointLabs/rallypoint/backend/internal/points"
	"github.com/RallyPointLabs/rallypoint/backend/internal/server"
	"github.com/RallyPointLabs/rallypoint/backend/internal/squads"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rallypoint-api",
		Short: "RallyPoint governance backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Float64("quorum-threshold", defaults.GetFloat64("governance.quorum_threshold"), "Fraction of snapshot weight required for quorum")
	cmd.PersistentFlags().Float64("pass-threshold", defaults.GetFloat64("governance.pass_threshold"), "Fraction of up+down weight required to pass")
	cmd.PersistentFlags().Int("retention-hours", defaults.GetInt("governance.retention_hours"), "Hours a terminal proposal is retained before archival")
	cmd.PersistentFlags().Int("tick-page-size", defaults.GetInt("governance.tick_page_size"), "Proposals scanned per tick phase")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "governance.quorum_threshold", "quorum-threshold")
	bindFlag(cmd, "governance.pass_threshold", "pass-threshold")
	bindFlag(cmd, "governance.retention_hours", "retention-hours")
	bindFlag(cmd, "governance.tick_page_size", "tick-page-size")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// newTokenCommand mints a session token for operator tooling and local
// testing against a running instance.
func newTokenCommand() *cobra.Command {
	var (
		userID string
		wallet string
		roles  []string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}

			issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				Issuer:        appConfig.TokenIssuer,
				TokenTTL:      ttl,
			})
			token, expiresIn, err := issuer.IssueSessionToken(cmd.Context(), userID, wallet, roles)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_in_s: %d\n", token, expiresIn)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Subject user id")
	cmd.Flags().StringVar(&wallet, "wallet", "", "Wallet address claim")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Roles to embed (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
	})
	if err != nil {
		return err
	}

	idNode, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	lifecycleMetrics := metrics.NewLifecycleMetrics(registry)

	tierDefs := tierDefinitions(appConfig.TierDefinitions)

	membership, err := squads.NewMembership(squads.MembershipConfig{
		Database: db,
		Tiers:    tierDefs,
	})
	if err != nil {
		return err
	}

	ledger, err := points.NewLedger(db)
	if err != nil {
		return err
	}

	stream := notifications.NewStream()
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherConfig{
		Database:   db,
		IDProvider: notifications.NewUUIDProvider(),
		Stream:     stream,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	lifecycleNotifier := notifications.NewLifecycleNotifier(dispatcher)

	inbox, err := notifications.NewService(notifications.ServiceConfig{
		Database:   db,
		ReadWindow: appConfig.ReadWindow,
	})
	if err != nil {
		return err
	}

	tierCalculator, err := squads.NewCalculator(squads.CalculatorConfig{
		Database:   db,
		Membership: membership,
		Notifier:   lifecycleNotifier,
		Tiers:      tierDefs,
		PageSize:   appConfig.TickPageSize,
		Logger:     logger,
		Metrics:    lifecycleMetrics,
	})
	if err != nil {
		return err
	}

	sideEffects := governance.NewLogSideEffects(logger)
	governanceService, err := governance.NewService(governance.ServiceConfig{
		Database:    db,
		IDNode:      idNode,
		Ledger:      ledger,
		Membership:  membership,
		Notifier:    lifecycleNotifier,
		Executor:    sideEffects,
		Broadcaster: sideEffects,
		TierBatch:   tierBatchHook(tierCalculator),
		Policy: governance.TallyPolicy{
			QuorumThreshold: appConfig.QuorumThreshold,
			PassThreshold:   appConfig.PassThreshold,
		},
		Retention: appConfig.Retention,
		PageSize:  appConfig.TickPageSize,
		Logger:    logger,
		Metrics:   lifecycleMetrics,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		Governance:       governanceService,
		Inbox:            inbox,
		Stream:           stream,
		Membership:       membership,
		TierCalculator:   tierCalculator,
		MetricsGatherer:  registry,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// tierBatchHook lets the lifecycle tick close with a tier recompute pass
// without the governance package depending on squads.
func tierBatchHook(calculator *squads.Calculator) governance.TierBatchFunc {
	return func(ctx context.Context) (int, int, error) {
		result, err := calculator.Run(ctx)
		return result.TotalChecked, result.TotalUpdated, err
	}
}

func tierDefinitions(defs []config.TierDefinition) []squads.TierDefinition {
	converted := make([]squads.TierDefinition, 0, len(defs))
	for _, def := range defs {
		converted = append(converted, squads.TierDefinition{
			Tier:       def.Tier,
			MinPoints:  def.MinPoints,
			MaxMembers: def.MaxMembers,
		})
	}
	return converted
}
