package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/italolelis/ytaudio_archiver/internal/blob/gcs"
	"github.com/italolelis/ytaudio_archiver/internal/config"
	"github.com/italolelis/ytaudio_archiver/internal/cookies"
	"github.com/italolelis/ytaudio_archiver/internal/dc/youtube"
	"github.com/italolelis/ytaudio_archiver/internal/downloader"
	"github.com/italolelis/ytaudio_archiver/internal/http/rest"
	"github.com/italolelis/ytaudio_archiver/internal/ledger"
	"github.com/italolelis/ytaudio_archiver/internal/logctx"
	"github.com/italolelis/ytaudio_archiver/internal/notifier"
	"github.com/italolelis/ytaudio_archiver/internal/storage"
	"github.com/italolelis/ytaudio_archiver/internal/storage/sqlite"
	"github.com/italolelis/ytaudio_archiver/internal/telemetry"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
	"github.com/spf13/cobra"
)

const (
	serviceName = "ytaudio_archiver"
	version     = "dev"

	natsFlushTimeout = 5 * time.Second
)

func main() {
	ctx, stop := interruptContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "err", err)
		stop()
		os.Exit(1)
	}
}

// interruptContext is cancelled by the first of signals. Default handling is
// then restored so a second signal terminates the process while in-flight
// items are still draining.
func interruptContext(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, signals...)
	restoreOnDone(ctx, stop)

	return ctx, stop
}

// restoreOnDone calls stop once ctx is done. The returned channel is closed
// after stop has run.
func restoreOnDone(ctx context.Context, stop func()) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()
		stop()
	}()

	return done
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Archive the audio of video channels into object storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			cfg = loaded

			logger := slog.New(logctx.NewContextHandler(
				slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
			))
			slog.SetDefault(logger)

			cmd.SetContext(logctx.WithLogger(cmd.Context(), logger))

			return nil
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Process every configured channel once",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), cfg)
			},
		},
		newCookiesCmd(func() *config.Config { return cfg }),
	)

	return root
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	channels, err := cfg.LoadChannels()
	if err != nil {
		return fmt.Errorf("failed to load channels: %w", err)
	}

	workerID := downloader.WorkerID(cfg.WorkerID)
	ctx = logctx.WithWorkerID(ctx, workerID)

	logger.Info("ytaudio archiver starting...",
		"log_level", cfg.LogLevel,
		"channels", len(channels),
		"max_parallel", cfg.MaxParallel,
		"upload", cfg.UploadConfigured(),
	)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Ledger
	csvLedger, err := ledger.OpenCSV(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer csvLedger.Close()

	var (
		mirrors  []ledger.Mirror
		outcomes storage.OutcomeReadRepository
	)

	if cfg.DBPath != "" {
		database, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open outcome database: %w", err)
		}
		defer database.Close()

		repo := sqlite.NewInstrumentedOutcomeRepository(database, tel)
		mirrors = append(mirrors, ledger.Mirror{Name: "sqlite", Ledger: repo})
		outcomes = repo
	}

	if cfg.NATSURL != "" {
		publisher, conn, err := notifier.ConnectNATS(cfg.NATSURL, cfg.NATSSubject, serviceName+"-"+workerID)
		if err != nil {
			logger.Warn("outcome events disabled, failed to connect to NATS", "err", err)
		} else {
			defer func() {
				if err := conn.FlushTimeout(natsFlushTimeout); err != nil {
					logger.Warn("failed to flush outcome events", "err", err)
				}

				conn.Close()
			}()

			mirrors = append(mirrors, ledger.Mirror{Name: "nats", Ledger: publisher})
		}
	}

	outcomeLedger := ledger.NewMulti(csvLedger, tel, mirrors...)

	// =========================================================================
	// Start Credentials
	monitor, refresher := setupCookies(cfg, tel)
	if cfg.Cookie.Browser != "" {
		monitorCtx, cancelMonitor := context.WithCancel(ctx)
		done := monitor.Start(monitorCtx)

		defer func() {
			cancelMonitor()
			<-done
		}()
	}

	// =========================================================================
	// Start Extractor
	extractor := transfer.NewInstrumentedExtractor(youtube.NewClient(youtube.Options{
		Executable:       cfg.YtdlpPath,
		WorkDir:          cfg.WorkDir,
		CookieFile:       cfg.Cookie.File,
		FormatPreference: cfg.FormatPreference,
		ExtractAudio:     cfg.ExtractAudio,
		AudioFormat:      cfg.AudioFormat,
		Timeout:          cfg.ExtractTimeout,
		Rate:             cfg.ExtractRate,
		Burst:            cfg.ExtractBurst,
	}), tel, "ytdlp")

	var credentials transfer.CredentialSource
	if cfg.Cookie.Browser != "" {
		credentials = refresher
	}

	retrier := downloader.NewRetrier(cfg.MaxAttempts, cfg.Classifier(), credentials)

	// =========================================================================
	// Start API Service
	tracker := downloader.NewTracker()

	if cfg.Web.Enabled {
		server := rest.NewServer(ctx, rest.ServerConfig{
			BindAddress:  cfg.Web.BindAddress,
			ReadTimeout:  cfg.Web.ReadTimeout,
			WriteTimeout: cfg.Web.WriteTimeout,
			IdleTimeout:  cfg.Web.IdleTimeout,
		}, rest.NewStatusHandler(tracker, outcomes), tel)

		go func() {
			logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server stopped", "err", err)
			}
		}()

		defer shutdownServer(ctx, server, cfg)
	}

	// =========================================================================
	// Start Coordinator
	coordinator := downloader.NewCoordinator(
		extractor,
		outcomeLedger,
		storeOpener(cfg, tel),
		retrier,
		downloader.Options{
			WorkDir:     cfg.WorkDir,
			MaxParallel: cfg.MaxParallel,
			WorkerID:    workerID,
		},
		tracker,
		notifier.NewDiscordNotifier(cfg.DiscordWebhookURL),
		tel,
	)

	if _, err := coordinator.Run(ctx, channels); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if ctx.Err() != nil {
		logger.Warn("run interrupted, remaining channels were not processed")
	}

	return nil
}

// storeOpener returns nil when uploads are not configured, which runs the
// archiver in download-only mode.
func storeOpener(cfg *config.Config, tel *telemetry.Telemetry) downloader.StoreOpener {
	if !cfg.UploadConfigured() {
		return nil
	}

	return func(ctx context.Context) (transfer.Store, error) {
		bucket, err := gcs.Open(ctx, gcs.Config{
			Bucket:          cfg.GCS.Bucket,
			Prefix:          cfg.GCS.Prefix,
			CredentialsFile: cfg.GCS.CredentialsFile,
			AccessToken:     cfg.GCS.AccessToken,
			ExistsTimeout:   cfg.GCS.ExistsTimeout,
			UploadTimeout:   cfg.GCS.UploadTimeout,
		})
		if err != nil {
			return nil, err
		}

		return transfer.NewInstrumentedStore(bucket, tel, "gcs"), nil
	}
}

func setupCookies(cfg *config.Config, tel *telemetry.Telemetry) (*cookies.Monitor, *cookies.Refresher) {
	refresher := cookies.NewRefresher(&cookies.BrowserExporter{
		Browser:    cfg.Cookie.Browser,
		Executable: cfg.YtdlpPath,
	}, cfg.Cookie.File, tel)

	return cookies.NewMonitor(refresher, cfg.Cookie.MaxAge, cfg.Cookie.CheckInterval), refresher
}

func shutdownServer(ctx context.Context, server *http.Server, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)
	logger.Info("start shutdown")

	// Give outstanding requests a deadline for completion.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("failed to gracefully shutdown the server", "err", err)

		if err = server.Close(); err != nil {
			logger.Error("could not stop server gracefully", "err", err)
		}
	}
}
