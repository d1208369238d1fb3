package schedule

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/tegami/internal/indexer"
)

// Backfiller is the part of the index manager the backfill job drives.
type Backfiller interface {
	BackfillAccountIDs(ctx context.Context) (indexer.BackfillReport, error)
}

// BackfillJob assigns account ids to search records that predate account tracking.
type BackfillJob struct {
	target Backfiller
	logger *zap.Logger
}

// NewBackfillJob creates the account backfill job.
func NewBackfillJob(target Backfiller, logger *zap.Logger) *BackfillJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackfillJob{target: target, logger: logger}
}

func (j *BackfillJob) Name() string { return "account_backfill" }

func (j *BackfillJob) Run(ctx context.Context) error {
	report, err := j.target.BackfillAccountIDs(ctx)
	if err != nil {
		return err
	}
	j.logger.Info("account backfill",
		zap.Int("scanned", report.Scanned),
		zap.Int("updated", report.Updated),
		zap.Int("missing", report.Missing),
		zap.Int("failed", report.Failed))
	return nil
}
