// token_cleanup.go implements the TokenCleanupJob background job, which periodically
// deletes API tokens whose expiry has passed. Expired tokens are already rejected by
// the identity middleware; the job only keeps the api_tokens table from growing.
// The job is a no-op when jobs.token_cleanup_interval is zero or negative.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/safego"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/telemetry"
)

// ExpiredTokenDeleter is the subset of the token repository the job needs.
type ExpiredTokenDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenCleanupJob periodically removes expired API tokens.
type TokenCleanupJob struct {
	tokens   ExpiredTokenDeleter
	interval time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// NewTokenCleanupJob creates a new TokenCleanupJob running every interval.
func NewTokenCleanupJob(tokens ExpiredTokenDeleter, interval time.Duration) *TokenCleanupJob {
	return &TokenCleanupJob{
		tokens:   tokens,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the cleanup loop in a goroutine. It runs one pass
// immediately, then repeats on the configured interval until ctx is
// cancelled or Stop is called.
func (j *TokenCleanupJob) Start(ctx context.Context) {
	if !j.started.CompareAndSwap(false, true) {
		return
	}
	if j.interval <= 0 {
		slog.Info("token cleanup job disabled", "interval", j.interval)
		close(j.done)
		return
	}
	slog.Info("token cleanup job started", "interval", j.interval)

	safego.Go("token_cleanup", func() {
		defer close(j.done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				j.RunOnce(ctx)
			case <-j.stopChan:
				slog.Info("token cleanup job stopped")
				return
			case <-ctx.Done():
				slog.Info("token cleanup job context cancelled")
				return
			}
		}
	})
}

// Stop signals the loop to exit and waits for it. Safe to call more than
// once, and before Start.
func (j *TokenCleanupJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
	if j.started.Load() {
		<-j.done
	}
}

// RunOnce deletes every token that expired before now and returns the count.
func (j *TokenCleanupJob) RunOnce(ctx context.Context) int64 {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	deleted, err := j.tokens.DeleteExpired(runCtx, j.now())
	if err != nil {
		slog.Error("token cleanup failed", "error", err)
		return 0
	}
	if deleted > 0 {
		telemetry.ExpiredTokensDeletedTotal.Add(float64(deleted))
		slog.Info("expired api tokens deleted", "count", deleted)
	}
	return deleted
}
