package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remindd/internal/caldav"
	"remindd/internal/config"
	appLog "remindd/internal/log"
	"remindd/internal/notify"
	"remindd/internal/remind"
	"remindd/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("cannot start: failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	level, ok := appLog.ParseLevel(conf.LogLevel)
	if !ok {
		appLog.Warn("invalid LOG_LEVEL, using INFO", "log_level", conf.LogLevel)
	}
	appLog.SetLevel(level)

	appLog.Info("remindd starting",
		"timezone", conf.Timezone,
		"sync_interval_sec", conf.SyncIntervalSec,
		"window_days", conf.WindowDays,
		"calendar_ids", len(conf.CalendarIDs),
	)

	// Missing URL, missing credentials or a bad timezone are startup-fatal.
	if err := conf.Validate(); err != nil {
		appLog.Error("cannot start: invalid configuration", err)
		os.Exit(1)
	}
	if len(conf.CalendarIDs) == 0 {
		appLog.Warn("CALENDAR_IDS selects no calendars; nothing will be polled")
	}

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("cannot start: invalid TIMEZONE", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	gateway, err := caldav.NewClient(conf.CalendarURL, conf.CalendarUsername, conf.CalendarPassword, loc)
	if err != nil {
		appLog.Error("cannot start: invalid CALENDAR_URL", err)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	// Initial login failure is startup-fatal: no partial-degraded mode.
	if err := gateway.Login(ctx); err != nil {
		appLog.Error("cannot start: login failed", err)
		os.Exit(1)
	}

	sink := notify.NewTelegram(conf.NotifyBotToken, conf.NotifyChatID)

	worker, err := remind.New(conf, gateway, sink)
	if err != nil {
		appLog.Error("cannot start: invalid worker configuration", err)
		os.Exit(1)
	}

	if flags.once {
		runOnce(ctx, worker)
		return
	}

	if conf.Listen != "" {
		server := web.NewServer(worker)
		go func() {
			if err := server.Start(ctx, conf.Listen); err != nil {
				appLog.Error("status server failed", err, "listen", conf.Listen)
			}
		}()
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		appLog.Error("worker stopped", err)
	}
	appLog.Info("remindd exiting")
}

// runOnce performs a single sync cycle and prints the extracted reminders,
// for smoke-testing a deployment without waiting on timers.
func runOnce(ctx context.Context, worker *remind.Worker) {
	reminders, err := worker.RunOnce(ctx)
	if err != nil {
		appLog.Error("sync failed", err)
		os.Exit(1)
	}
	appLog.Info("sync complete", "pending", len(reminders))
	for _, r := range reminders {
		appLog.Info("pending reminder",
			"event", r.Summary,
			"fire_at", r.FireAt.Format(time.RFC3339),
			"event_start", r.EventStart.Format(time.RFC3339),
		)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "", "Optional YAML config file providing defaults below the environment")
	flag.StringVar(&cfg.listen, "listen", "", "Status HTTP listen address (overrides LISTEN if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one sync cycle, print pending reminders and exit")

	flag.Parse()

	return cfg
}
