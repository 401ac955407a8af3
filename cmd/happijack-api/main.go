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

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/config"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/deploy"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/gameroot"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/keeper"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/lottery"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/server"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	release = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "happijack-api",
		Short: "Happijack lottery backend service",
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
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-driver", defaults.GetString("database.driver"), "Store driver (sqlite, badger, memory)")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("badger-dir", defaults.GetString("database.badger_dir"), "Badger data directory")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("sentry-dsn", "", "Sentry DSN for error reporting")
	flags.String("signing-secret", "", "Token signing secret (overrides env)")
	flags.Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Bearer token TTL in minutes")
	flags.String("admin-address", "", "Platform admin account")
	flags.String("manifest", "", "Deployment manifest (yaml or json)")
	flags.Bool("keeper", defaults.GetBool("keeper.enabled"), "Run the verification keeper")
	flags.String("keeper-schedule", defaults.GetString("keeper.schedule"), "Keeper cron schedule")
	flags.String("keeper-address", "", "Account the keeper verifies as")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.badger_dir", "badger-dir")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.sentry_dsn", "sentry-dsn")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "platform.admin_address", "admin-address")
	bindFlag(cmd, "platform.manifest_path", "manifest")
	bindFlag(cmd, "keeper.enabled", "keeper")
	bindFlag(cmd, "keeper.schedule", "keeper-schedule")
	bindFlag(cmd, "keeper.address", "keeper-address")
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
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newTokenCommand() *cobra.Command {
	var address string
	var displayName string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(address) {
				return fmt.Errorf("invalid --address %q", address)
			}
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := newTokenIssuer(appConfig)
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueToken(cmd.Context(), common.HexToAddress(address), displayName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %ds\n", expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Account address the token is issued to")
	cmd.Flags().StringVar(&displayName, "name", "", "Optional display name")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func newTokenIssuer(appConfig config.AppConfig) (*auth.TokenIssuer, error) {
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, flush, err := logging.NewLogger(logging.Options{
		Level:     appConfig.LogLevel,
		SentryDSN: appConfig.SentryDSN,
		Release:   release,
	})
	if err != nil {
		return err
	}
	defer flush()

	backing, closeStore, err := openStore(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	root, err := gameroot.New(ctx, gameroot.Config{
		Store:  backing,
		Admin:  appConfig.AdminAddress,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	dispatcher := server.NewRealtimeDispatcher()
	root.AddObserver(recorder)
	root.AddListener(recorder)
	root.AddListener(dispatcher)

	manifest, err := deploy.LoadManifest(appConfig.ManifestPath)
	if err != nil {
		return err
	}
	deployment, err := deploy.Apply(ctx, root, appConfig.AdminAddress, manifest, appConfig.Lottery, logger)
	if err != nil {
		return err
	}
	logger.Info("lottery modules deployed",
		zap.Int("systems", len(deployment.Addresses)),
		zap.Strings("registered", deployment.Registered))

	client := lottery.NewClient(root)

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuers:       []string{appConfig.SessionIssuer, appConfig.TokenIssuer},
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Lottery:          client,
		SessionValidator: validator,
		Realtime:         dispatcher,
		Metrics:          recorder,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: appConfig.RequestsPerSecond,
			Burst:             appConfig.Burst,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if appConfig.KeeperEnabled {
		verifier, err := keeper.New(keeper.Config{
			Client:   client,
			Address:  appConfig.KeeperAddress,
			Schedule: appConfig.KeeperSchedule,
			Logger:   logger,
			Observer: recorder,
		})
		if err != nil {
			return err
		}
		if err := verifier.Start(signalCtx); err != nil {
			return err
		}
		defer verifier.Stop()
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
