package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"billscope/internal/config"
	"billscope/internal/metrics"
	"billscope/internal/port"
)

const (
	maxBatchesPerSweep = 20
	sweepTimeout       = 10 * time.Minute
)

// SweepResult counts what one sweep removed.
type SweepResult struct {
	ImagesDeleted int
	ImageErrors   int
	TextCleared   int64
}

// LifecycleSweeper enforces retention deadlines: images are removed from
// storage after 24h and raw extracted text is nulled after 7 days. Both
// sweeps are idempotent and safe to run from several instances at once.
type LifecycleSweeper struct {
	images  port.ImageRepository
	bills   port.BillRepository
	storage port.ObjectStorage
	cfg     config.LifecycleConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewLifecycleSweeper creates a new LifecycleSweeper.
func NewLifecycleSweeper(images port.ImageRepository, bills port.BillRepository, storage port.ObjectStorage, cfg config.LifecycleConfig, logger *zap.Logger) *LifecycleSweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleSweeper{
		images:  images,
		bills:   bills,
		storage: storage,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (w *LifecycleSweeper) WithClock(now func() time.Time) *LifecycleSweeper {
	w.now = now
	return w
}

// Start sweeps once immediately and then on every interval until ctx is
// canceled. A sweep in progress at cancellation runs to completion.
func (w *LifecycleSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	w.logger.Info("lifecycleSweeper: started",
		zap.Duration("interval", w.cfg.SweepInterval),
		zap.Int("batch_size", w.cfg.BatchSize))

	w.sweepDetached(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("lifecycleSweeper: shutdown complete")
			return
		case <-ticker.C:
			w.sweepDetached(ctx)
		}
	}
}

// Run starts the sweeper in its own goroutine. The returned channel is closed
// once Start has returned, including any sweep in flight at cancellation.
func (w *LifecycleSweeper) Run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx)
	}()
	return done
}

// sweepDetached runs a sweep on a context that outlives ctx cancellation.
func (w *LifecycleSweeper) sweepDetached(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sweepTimeout)
	defer cancel()
	w.SweepOnce(sweepCtx)
}

// SweepOnce runs both retention sweeps.
func (w *LifecycleSweeper) SweepOnce(ctx context.Context) SweepResult {
	var res SweepResult
	res.ImagesDeleted, res.ImageErrors = w.sweepImages(ctx)
	res.TextCleared = w.sweepText(ctx)
	if res.ImagesDeleted > 0 || res.TextCleared > 0 || res.ImageErrors > 0 {
		w.logger.Info("lifecycleSweeper: sweep finished",
			zap.Int("images_deleted", res.ImagesDeleted),
			zap.Int("image_errors", res.ImageErrors),
			zap.Int64("text_cleared", res.TextCleared))
	}
	return res
}

func (w *LifecycleSweeper) sweepImages(ctx context.Context) (deleted, failed int) {
	for batch := 0; batch < maxBatchesPerSweep; batch++ {
		due, err := w.images.ClaimDueForDeletion(ctx, w.now().UTC(), w.cfg.ClaimLease, w.cfg.BatchSize)
		if err != nil {
			w.logger.Error("lifecycleSweeper: claiming images", zap.Error(err))
			metrics.LifecycleErrors.WithLabelValues(metrics.ArtifactImage).Inc()
			return deleted, failed + 1
		}

		for i := range due {
			img := due[i]
			// A failed delete keeps the row unmarked; the lease expires and a
			// later sweep retries it.
			if err := w.storage.Delete(ctx, img.Bucket, img.StorageKey); err != nil {
				w.logger.Error("lifecycleSweeper: deleting image object",
					zap.String("image_id", img.ID.String()), zap.Error(err))
				metrics.LifecycleErrors.WithLabelValues(metrics.ArtifactImage).Inc()
				failed++
				continue
			}
			marked, err := w.images.MarkDeleted(ctx, img.ID, w.now().UTC())
			if err != nil {
				w.logger.Error("lifecycleSweeper: marking image deleted",
					zap.String("image_id", img.ID.String()), zap.Error(err))
				metrics.LifecycleErrors.WithLabelValues(metrics.ArtifactImage).Inc()
				failed++
				continue
			}
			if marked {
				deleted++
				metrics.LifecycleRemoved.WithLabelValues(metrics.ArtifactImage).Inc()
			}
		}

		if len(due) < w.cfg.BatchSize {
			break
		}
	}
	return deleted, failed
}

func (w *LifecycleSweeper) sweepText(ctx context.Context) int64 {
	var total int64
	for batch := 0; batch < maxBatchesPerSweep; batch++ {
		n, err := w.bills.ClearExpiredText(ctx, w.now().UTC(), w.cfg.BatchSize)
		if err != nil {
			w.logger.Error("lifecycleSweeper: clearing expired text", zap.Error(err))
			metrics.LifecycleErrors.WithLabelValues(metrics.ArtifactText).Inc()
			break
		}
		total += n
		metrics.LifecycleRemoved.WithLabelValues(metrics.ArtifactText).Add(float64(n))
		if n < int64(w.cfg.BatchSize) {
			break
		}
	}
	return total
}
