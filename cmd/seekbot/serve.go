package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seekdata/seekbot/internal/bot"
	"github.com/seekdata/seekbot/internal/importer"
	"github.com/seekdata/seekbot/internal/store"
	"github.com/seekdata/seekbot/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and Telegram bot",
	Long:  "Starts the HTTP server (liveness and webhook endpoints) and, when a bot token is configured, the Telegram front-end. Stops cleanly on SIGINT/SIGTERM.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := importer.NewService(st, importer.Options{
		StagingDir:      cfg.Import.StagingDir,
		WorkDir:         cfg.Import.WorkDir,
		ClearWorkDir:    cfg.Import.ClearWorkDir,
		ChunkRows:       cfg.Import.ChunkRows,
		BatchSize:       cfg.Import.BatchSize,
		Timeout:         cfg.Import.Timeout,
		MaxDownloadSize: cfg.Import.MaxDownloadSize,
	})

	var tgBot *bot.Bot
	if cfg.Telegram.Token != "" {
		tgBot, err = bot.New(cfg.Telegram.Token, svc, cfg.Telegram.SearchLimit)
		if err != nil {
			return err
		}
	} else {
		slog.Warn("no telegram token configured, bot disabled")
	}

	// The webhook route is only mounted in webhook mode; the webhook URL
	// itself must be registered with Telegram out of band.
	var sink web.UpdateSink
	if tgBot != nil && cfg.Telegram.WebhookMode {
		sink = tgBot
	}
	srv := web.NewServer(cfg.Server, sink)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if tgBot != nil {
		if cfg.Telegram.WebhookMode {
			slog.Info("telegram updates via webhook", "path", "/webhook")
			g.Go(func() error {
				<-ctx.Done()
				tgBot.Wait()
				return nil
			})
		} else {
			slog.Info("telegram updates via long polling")
			g.Go(func() error { return tgBot.Run(ctx) })
		}
	}

	return g.Wait()
}
