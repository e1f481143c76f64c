package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SolsticeMemorials/keepsake/backend/internal/antibot"
	"github.com/SolsticeMemorials/keepsake/backend/internal/auth"
	"github.com/SolsticeMemorials/keepsake/backend/internal/blob"
	"github.com/SolsticeMemorials/keepsake/backend/internal/cdn"
	"github.com/SolsticeMemorials/keepsake/backend/internal/config"
	"github.com/SolsticeMemorials/keepsake/backend/internal/logging"
	"github.com/SolsticeMemorials/keepsake/backend/internal/memories"
	"github.com/SolsticeMemorials/keepsake/backend/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "keepsake-api",
		Short: "Keepsake memorial site backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("blob-backend", defaults.GetString("blob.backend"), "Blob store backend (http or sqlite)")
	cmd.PersistentFlags().String("blob-base-url", defaults.GetString("blob.base_url"), "Hosted blob service base URL")
	cmd.PersistentFlags().String("blob-sqlite-path", defaults.GetString("blob.sqlite_path"), "SQLite blob store path")
	cmd.PersistentFlags().String("cdn-cloud-name", defaults.GetString("cdn.cloud_name"), "Image CDN cloud name")
	cmd.PersistentFlags().String("antibot-verify-url", defaults.GetString("antibot.verify_url"), "Challenge verification endpoint")
	cmd.PersistentFlags().Int("curator-token-ttl-minutes", defaults.GetInt("curator.token_ttl_minutes"), "Curator token TTL in minutes")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "blob.backend", "blob-backend")
	bindFlag(cmd, "blob.base_url", "blob-base-url")
	bindFlag(cmd, "blob.sqlite_path", "blob-sqlite-path")
	bindFlag(cmd, "cdn.cloud_name", "cdn-cloud-name")
	bindFlag(cmd, "antibot.verify_url", "antibot-verify-url")
	bindFlag(cmd, "curator.token_ttl_minutes", "curator-token-ttl-minutes")
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

	blobStore, closeStore, err := openBlobStore(appConfig, logger)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret:   []byte(appConfig.CuratorSigningSecret),
		Issuer:          "keepsake-auth",
		Audience:        "keepsake-api",
		CuratorTokenTTL: appConfig.CuratorTokenTTL,
	})
	if err != nil {
		return err
	}

	curatorGate, err := auth.NewCuratorGate(appConfig.CuratorPassword, tokenIssuer)
	if err != nil {
		return err
	}

	challengeVerifier, err := antibot.NewVerifier(antibot.VerifierConfig{
		Secret:    appConfig.AntibotSecret,
		VerifyURL: appConfig.AntibotVerifyURL,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	var destroyer memories.PhotoDestroyer
	if appConfig.CDNCloudName != "" {
		cdnClient, err := cdn.NewClient(cdn.ClientConfig{
			CloudName: appConfig.CDNCloudName,
			APIKey:    appConfig.CDNAPIKey,
			APISecret: appConfig.CDNAPISecret,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		destroyer = cdnClient
	} else {
		logger.Warn("cdn credentials not configured, deleted memories keep their assets")
	}

	memoriesService, err := memories.NewService(memories.ServiceConfig{
		Documents: memories.NewDocumentStore(blobStore, time.Now),
		Index:     memories.NewIndexStore(blobStore),
		Aggregator: memories.NewAggregator(memories.AggregatorConfig{
			Store:            blobStore,
			FetchConcurrency: appConfig.FetchConcurrency,
			MaxItems:         appConfig.ListMaxItems,
			Logger:           logger,
		}),
		Destroyer:    destroyer,
		Clock:        time.Now,
		IDProvider:   memories.NewUUIDProvider(),
		Logger:       logger,
		BodyMaxChars: appConfig.BodyMaxChars,
		ExcerptChars: appConfig.ExcerptChars,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Memories:    memoriesService,
		Tokens:      tokenIssuer,
		CuratorGate: curatorGate,
		Antibot:     challengeVerifier,
		RateLimiter: rate.NewLimiter(rate.Limit(appConfig.RateLimitPerSecond), appConfig.RateLimitBurst),
		Logger:      logger,
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

func openBlobStore(appConfig config.AppConfig, logger *zap.Logger) (blob.Store, func() error, error) {
	switch appConfig.BlobBackend {
	case config.BlobBackendHTTP:
		store, err := blob.NewHTTPStore(blob.HTTPStoreConfig{
			BaseURL:    appConfig.BlobBaseURL,
			ReadToken:  appConfig.BlobReadToken,
			WriteToken: appConfig.BlobWriteToken,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		store, err := blob.OpenSQLite(appConfig.BlobSQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
}
