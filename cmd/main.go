package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	config "github.com/jpxlab/jpxsync"
	"github.com/jpxlab/jpxsync/fetch"
	"github.com/jpxlab/jpxsync/keys"
	"github.com/jpxlab/jpxsync/pipeline"
	"github.com/jpxlab/jpxsync/publish"
	"github.com/jpxlab/jpxsync/runner"
	"github.com/jpxlab/jpxsync/scheduler"
	_secrets "github.com/jpxlab/jpxsync/secrets"
)

const syncJobName = "jpx-sync"

func main() {
	// run owns all deferred cleanup; os.Exit lives only here so the store
	// and logger are flushed even on a failing -once pass
	os.Exit(run())
}

func run() int {
	once := flag.Bool("once", false, "run a single sync pass and exit")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting jpxsync")

	useInfisical := os.Getenv("USE_INFISICAL") == "true"
	secrets, err := keys.NewInfisicalSecrets(useInfisical)
	if err != nil {
		if useInfisical {
			log.Error("infisical secrets unavailable", zap.Error(err))
			return 1
		}
		log.Warn("infisical secrets unavailable, using environment only", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", zap.Error(err))
		return 1
	}
	cfg.Token = _secrets.Resolve(secrets, "PAT")
	if actor := _secrets.Resolve(secrets, "GIT_ACTOR"); actor != "" {
		cfg.Actor = actor
	}

	// best-effort run history; the pipeline works without it
	var store *scheduler.Store
	if cfg.Store.Driver != "" && cfg.Store.Path != "" {
		s, err := scheduler.OpenStore(cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			log.Warn("run store unavailable", zap.Error(err))
		} else {
			store = s
			defer store.Close()
		}
	}

	pub := publish.New(cfg.RepoPath, cfg, log)
	dataPath := filepath.Join(cfg.RepoPath, cfg.DataDir)

	// Choose downloader
	var d runner.Downloader
	switch cfg.Downloader {
	case "script":
		d = runner.NewLocalRunner(cfg.DownloaderScript, dataPath)
	case "cloudrun":
		cr := runner.NewCloudRunRunner(cfg.GCPProjectID, cfg.GCPRegion, cfg.JobsImage)
		cr.ServiceAccountEmail = cfg.ServiceAccountEmail
		if err := cr.EnsureSchedule(context.Background(), cfg.CronSpec); err != nil {
			log.Warn("cloud scheduler sync failed", zap.Error(err))
		}
		d = cr
	default:
		d = fetch.NewJPXDownloader(dataPath, cfg.Sources, log)
	}

	p := pipeline.New(d, pub, store, cfg.Branch, log)

	if *once {
		if err := p.Run(context.Background(), "manual"); err != nil {
			return 1
		}
		return 0
	}

	sched := scheduler.New()
	defer sched.Stop()
	if err := sched.Schedule(syncJobName, cfg.CronSpec, func(ctx context.Context) {
		_ = p.Run(ctx, "cron")
	}); err != nil {
		log.Error("invalid cron spec", zap.String("spec", cfg.CronSpec), zap.Error(err))
		return 1
	}
	log.Info("schedule installed", zap.String("spec", cfg.CronSpec))

	manual := make(chan os.Signal, 1)
	signal.Notify(manual, syscall.SIGUSR1)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-manual:
			_ = p.Run(context.Background(), "manual")
		case <-stop:
			log.Info("shutting down")
			return 0
		}
	}
}
