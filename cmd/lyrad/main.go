package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/lyra-sh/lyrad/dispatch"
	"github.com/lyra-sh/lyrad/internal/appindex"
	"github.com/lyra-sh/lyrad/internal/config"
	"github.com/lyra-sh/lyrad/internal/history"
	"github.com/lyra-sh/lyrad/internal/search"
	"github.com/lyra-sh/lyrad/launcher"
	"github.com/lyra-sh/lyrad/server"
)

func main() {
	if level, err := logrus.ParseLevel(os.Getenv("LYRA_LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}
	log := logrus.WithField("component", "main")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	defer cfg.Close()
	if err := cfg.Watch(); err != nil {
		log.WithError(err).Warn("config file watching disabled")
	}

	journal, err := history.OpenJournal(cfg.DataDir())
	if err != nil {
		log.WithError(err).Warn("launch journal disabled")
		journal = nil
	} else {
		defer journal.Close()
	}

	usage := history.NewUsageTracker(cfg.DataDir(), journal)
	recency := history.NewRecencyTracker(cfg.DataDir(), journal, func() history.Multipliers {
		s := cfg.Scoring()
		return history.Multipliers{Hour: s.HourMult, Day: s.DayMult, Week: s.WeekMult, Older: s.OlderMult}
	})

	index := appindex.New(cfg)
	log.WithField("apps", len(index.Snapshot())).Info("application index ready")
	if err := index.Watch(); err != nil {
		log.WithError(err).Warn("application directory watching disabled")
	}
	defer index.Close()

	engine, err := search.New(cfg, index, usage, recency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create search engine: %v\n", err)
		os.Exit(1)
	}

	registry := launcher.NewRegistry()
	applyAliases := func() {
		for token, pluginName := range cfg.Aliases() {
			if err := registry.Alias(token, pluginName); err != nil {
				log.WithError(err).WithField("token", token).Warn("skipping alias")
			}
		}
	}
	applyAliases()
	cfg.OnReload(applyAliases)

	d := dispatch.New(cfg, registry, engine, index, usage, recency, journal)
	defer d.Close()

	srv, err := server.New(cfg, d)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.WithField("socket", cfg.Socket()).Info("lyrad started")

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()
		if err := srv.Stop(); err != nil {
			log.WithError(err).Warn("error stopping server")
		}
	case err := <-serverErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	}

	usage.Flush()
	recency.Flush()
	log.Info("lyrad stopped")
}
