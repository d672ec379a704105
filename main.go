// entry point of the application
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"plistdl/internal/archive"
	"plistdl/internal/config"
	"plistdl/internal/consts"
	"plistdl/internal/controller"
	"plistdl/internal/depmanager"
	"plistdl/internal/entity"
	"plistdl/internal/observability"
	"plistdl/internal/runner"
	httpserver "plistdl/pkg/http/server"
	"plistdl/pkg/logger"
)

type cliFlags struct {
	dest          string
	cookies       string
	concurrency   int
	archiveList   bool
	archiveCount  bool
	archiveRemove string
	archiveClear  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		slog.Error("config new", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	flags := parseFlags(cfg)

	log, err := logger.New(&logger.Options{
		AddSource: true,
		Level:     cfg.App.LogLevel,
		Format:    cfg.App.LogFormat,
	})
	if err != nil {
		slog.WarnContext(ctx, "logger level invalid; defaulting to info", slog.Any("error", err))
	}

	if runArchiveOp(flags) {
		return
	}

	url := flag.Arg(0)
	if url == "" {
		fmt.Fprintln(os.Stderr, "usage: plistdl [flags] <playlist-url>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	depMgr := depmanager.New(log, cfg)
	metrics := observability.New()

	log.InfoContext(ctx, "checking yt-dlp and ffmpeg availability")

	if err := depMgr.Start(ctx); err != nil {
		log.ErrorContext(ctx, "dependency manager start", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	var metricsSrv *httpserver.Server

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())

		metricsSrv = httpserver.New(mux, httpserver.Options{
			Addr:            cfg.Metrics.Addr,
			ShutdownTimeout: cfg.Metrics.ShutdownTimeout,
		})

		log.InfoContext(ctx, "metrics endpoint enabled", slog.String("addr", cfg.Metrics.Addr))
	}

	run := runner.New(log, cfg.Job.GracePeriod)
	ctrl := controller.New(cfg, log, run, depMgr, metrics)

	notifications, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	params := entity.JobParameters{
		PlaylistURL:     url,
		DestinationRoot: flags.dest,
		CookieFile:      flags.cookies,
		Concurrency:     flags.concurrency,
	}

	job, err := ctrl.Start(ctx, params)
	if err != nil {
		log.ErrorContext(ctx, "job start", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	log.InfoContext(ctx, "plistdl started", "job", job)

	// First interrupt stops the job cooperatively; restoring default signal
	// handling lets a second interrupt terminate the process outright.
	go func() {
		<-ctx.Done()
		stop()

		if err := ctrl.Stop(); err != nil {
			log.Warn("stop", slog.Any("error", err))
		}
	}()

	for n := range notifications {
		switch {
		case n.Event != nil:
			render(n.Event)
		case n.State != nil && n.State.State.Terminal():
			finish(log, ctrl.CurrentJob(), metricsSrv)
		}
	}
}

func parseFlags(cfg *config.Config) cliFlags {
	var flags cliFlags

	concurrency := cfg.Job.Concurrency
	if concurrency <= 0 {
		concurrency = consts.DefaultConcurrency
	}

	flag.StringVar(&flags.dest, "dest", cfg.Dir.Downloads, "destination root directory")
	flag.StringVar(&flags.cookies, "cookies", cfg.Dir.CookieFile, "path to a Netscape-format cookies file")
	flag.IntVar(&flags.concurrency, "concurrency", concurrency, "concurrent fragment downloads")
	flag.BoolVar(&flags.archiveList, "archive-list", false, "list archived item identifiers and exit")
	flag.BoolVar(&flags.archiveCount, "archive-count", false, "print the number of archived items and exit")
	flag.StringVar(&flags.archiveRemove, "archive-remove", "", "remove one identifier from the archive and exit")
	flag.BoolVar(&flags.archiveClear, "archive-clear", false, "delete the archive file and exit")
	flag.Parse()

	return flags
}

// runArchiveOp executes the first requested archive operation against the
// ledger at the destination root. Returns false when none was requested.
func runArchiveOp(flags cliFlags) bool {
	ledger := archive.New(flags.dest)

	switch {
	case flags.archiveList:
		entries, err := ledger.Entries()
		fatalOn(err)

		for _, entry := range entries {
			fmt.Println(entry)
		}
	case flags.archiveCount:
		count, err := ledger.Count()
		fatalOn(err)
		fmt.Println(count)
	case flags.archiveRemove != "":
		fatalOn(ledger.Remove(flags.archiveRemove))
	case flags.archiveClear:
		fatalOn(ledger.Clear())
	default:
		return false
	}

	return true
}

func render(event *entity.ProgressEvent) {
	switch event.Kind {
	case entity.EventItemStarted:
		fmt.Printf("[%d] %s\n", event.Index, event.Title)
	case entity.EventDownloadProgress:
		fmt.Printf("\r  %6.2f%%  ETA %s ", event.Percent, formatETA(event.ETASeconds))
	case entity.EventItemCompleted:
		fmt.Print("\r  done\n")
	case entity.EventItemSkipped:
		fmt.Printf("[%d] %s (already downloaded)\n", event.Index, event.Title)
	case entity.EventMergeStarted:
		fmt.Print("\r  merging formats\n")
	case entity.EventError:
		fmt.Fprintf(os.Stderr, "error: %s\n", event.Message)
	case entity.EventLog:
		fmt.Println(event.Line)
	}
}

func finish(log *slog.Logger, job *entity.Job, metricsSrv *httpserver.Server) {
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(); err != nil {
			log.Error("metrics server shutdown", slog.Any("error", err))
		}
	}

	if job == nil {
		os.Exit(1)
	}

	log.Info("plistdl finished", "job", job)

	if job.State == entity.JobStateFailed {
		for _, line := range job.ErrorTail {
			fmt.Fprintln(os.Stderr, line)
		}

		os.Exit(1)
	}

	os.Exit(0)
}

func formatETA(seconds int) string {
	if seconds <= 0 {
		return "--:--"
	}

	const secondsPerMinute = 60

	return fmt.Sprintf("%02d:%02d", seconds/secondsPerMinute, seconds%secondsPerMinute)
}

func fatalOn(err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
