package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pointcount/avifauna/cmd"
	"github.com/pointcount/avifauna/internal/conf"
	"github.com/pointcount/avifauna/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		logging.Fatal("error loading configuration", "error", err)
	}

	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	if settings.Main.Log.Enabled {
		fileLogger, closer, err := logging.NewFileLogger(
			settings.Main.Log.Path, settings.Main.Name, slog.LevelInfo)
		if err != nil {
			logging.Warn("file log disabled", "path", settings.Main.Log.Path, "error", err)
		} else {
			slog.SetDefault(fileLogger)
			defer func() {
				if err := closer(); err != nil {
					logging.Warn("error closing log file", "error", err)
				}
			}()
		}
	}

	// SIGINT/SIGTERM cancel the context; long replicate loops stop at the
	// next replicate boundary.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error("command failed", "error", err)
		os.Exit(1)
	}
}
