// Package pipeline runs one sync pass: provision the workspace, invoke the
// downloader, then let the publisher decide whether a commit is due. Steps
// are strictly sequential and any failure ends the run.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jpxlab/jpxsync/publish"
	"github.com/jpxlab/jpxsync/runner"
	"github.com/jpxlab/jpxsync/scheduler"
)

// Publisher is what the pipeline needs from the publish step; *publish.Publisher
// satisfies it and tests substitute a stub.
type Publisher interface {
	EnsureWorkspace(ctx context.Context, branch string) error
	Publish(ctx context.Context) (*publish.Result, error)
}

type Pipeline struct {
	downloader runner.Downloader
	publisher  Publisher
	store      *scheduler.Store
	branch     string
	log        *zap.Logger

	// serializes passes so a manual trigger during a scheduled run queues
	// instead of racing it on the repository
	mu sync.Mutex
}

func New(downloader runner.Downloader, publisher Publisher, store *scheduler.Store, branch string, log *zap.Logger) *Pipeline {
	return &Pipeline{
		downloader: downloader,
		publisher:  publisher,
		store:      store,
		branch:     branch,
		log:        log,
	}
}

// Run executes one pass. trigger names the source of the invocation ("cron"
// or "manual"); both behave identically from here on.
func (p *Pipeline) Run(ctx context.Context, trigger string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := uuid.NewString()
	start := time.Now()
	p.log.Info("sync pass starting", zap.String("run", id), zap.String("trigger", trigger))

	rec := scheduler.RunRecord{ID: id, Trigger: trigger, StartedAt: start.Unix()}
	err := p.run(ctx, &rec)
	rec.FinishedAt = time.Now().Unix()
	rec.Status = "success"
	if err != nil {
		rec.Status = "error"
		rec.Error = err.Error()
	}
	p.record(ctx, rec)

	if err != nil {
		p.log.Error("sync pass failed", zap.String("run", id), zap.Error(err))
		return err
	}
	p.log.Info("sync pass finished",
		zap.String("run", id),
		zap.String("commit", rec.CommitHash),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (p *Pipeline) run(ctx context.Context, rec *scheduler.RunRecord) error {
	if err := p.publisher.EnsureWorkspace(ctx, p.branch); err != nil {
		return err
	}

	res, err := p.downloader.Run(ctx)
	rec.Files = res.FilesWritten
	if err != nil {
		return err
	}

	pub, err := p.publisher.Publish(ctx)
	if err != nil {
		return err
	}
	if pub.Committed {
		rec.CommitHash = pub.Hash
	}
	return nil
}

func (p *Pipeline) record(ctx context.Context, rec scheduler.RunRecord) {
	if p.store == nil {
		return
	}
	if err := p.store.AddRun(ctx, rec); err != nil {
		p.log.Warn("failed to record run", zap.String("run", rec.ID), zap.Error(err))
	}
}
