package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-marketplace-ledger/internal/adapter"
	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
	"github.com/feral-file/ff-marketplace-ledger/internal/ingestor"
	"github.com/feral-file/ff-marketplace-ledger/internal/logger"
	"github.com/feral-file/ff-marketplace-ledger/internal/store"
)

const (
	DEFAULT_RECONCILE_INTERVAL = 5 * time.Minute
	DEFAULT_AUDIT_LIMIT        = 100
)

// ReconcilerConfig holds configuration for the reconciliation sweeper
type ReconcilerConfig struct {
	Network  string
	Interval time.Duration
	// BackfillWindow bounds the first replay when no block cursor has been saved yet
	BackfillWindow uint64
	// AuditLimit caps the number of inconsistent users reported per cycle
	AuditLimit int
}

// ReconcileResult summarizes one reconciliation cycle
type ReconcileResult struct {
	FromBlock      uint64
	ToBlock        uint64
	Events         int
	Failed         int
	CursorAdvanced bool
	Discrepancies  int
}

// Reconciler replays the chain from the saved block cursor so that events missed by the
// live handlers are recorded, and audits the XP ledger
type Reconciler interface {
	Sweeper

	// Reconcile runs one reconciliation cycle
	Reconcile(ctx context.Context) (ReconcileResult, error)
}

type reconciler struct {
	config    ReconcilerConfig
	ingestor  ingestor.Ingestor
	store     store.Store
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewReconciler creates a reconciliation sweeper for one network
func NewReconciler(cfg ReconcilerConfig, ing ingestor.Ingestor, st store.Store, clock adapter.Clock) Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DEFAULT_RECONCILE_INTERVAL
	}
	if cfg.BackfillWindow == 0 {
		cfg.BackfillWindow = domain.DEFAULT_BACKFILL_WINDOW
	}
	if cfg.AuditLimit <= 0 {
		cfg.AuditLimit = DEFAULT_AUDIT_LIMIT
	}

	return &reconciler{
		config:    cfg,
		ingestor:  ing,
		store:     st,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (r *reconciler) Name() string {
	return "ledger-reconciler"
}

// Start runs a cycle immediately and then every interval
func (r *reconciler) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer close(r.stoppedCh)

	ctx = logger.WithFields(ctx,
		zap.String("sweeper", r.Name()),
		zap.String("network", r.config.Network))

	logger.InfoCtx(ctx, "Starting reconciler", zap.Duration("interval", r.config.Interval))

	for {
		if _, err := r.Reconcile(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorCtx(ctx, err, zap.String("message", "Reconciliation cycle failed"))
		}

		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Reconciler stopping due to context cancellation")
			return nil
		case <-r.stopChan:
			logger.InfoCtx(ctx, "Reconciler stop requested")
			return nil
		case <-r.clock.After(r.config.Interval):
		}
	}
}

// Stop signals the loop and waits for it to exit
func (r *reconciler) Stop(ctx context.Context) error {
	if !r.running.CompareAndSwap(true, false) {
		return nil
	}

	close(r.stopChan)

	select {
	case <-r.stoppedCh:
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Reconciler stop interrupted by context timeout")
		return ctx.Err()
	}
}

// Reconcile replays [cursor+1, head] and advances the cursor when every event in it was handled
func (r *reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	startTime := r.clock.Now()

	cursor, err := r.store.GetBlockCursor(ctx, r.config.Network)
	if err != nil {
		return result, fmt.Errorf("failed to get block cursor: %w", err)
	}

	fromBlock := cursor + 1
	if cursor == 0 {
		watermark := r.ingestor.Status().Watermark
		fromBlock = 0
		if watermark > r.config.BackfillWindow {
			fromBlock = watermark - r.config.BackfillWindow
		}
	}

	backfill, err := r.ingestor.Backfill(ctx, fromBlock)
	if err != nil {
		if errors.Is(err, ingestor.ErrNotRunning) {
			logger.DebugCtx(ctx, "Ingestor not running, skipping replay")
			return result, nil
		}
		return result, fmt.Errorf("failed to replay from block %d: %w", fromBlock, err)
	}

	result.FromBlock = backfill.FromBlock
	result.ToBlock = backfill.ToBlock
	result.Events = backfill.Events
	result.Failed = backfill.Failed + backfill.FailedQueries

	if backfill.Complete() && backfill.ToBlock > cursor {
		if err := r.store.SetBlockCursor(ctx, r.config.Network, backfill.ToBlock); err != nil {
			return result, fmt.Errorf("failed to save block cursor: %w", err)
		}
		result.CursorAdvanced = true
	}

	discrepancies, err := r.store.GetLedgerDiscrepancies(ctx, r.config.AuditLimit)
	if err != nil {
		return result, fmt.Errorf("failed to audit ledger: %w", err)
	}
	result.Discrepancies = len(discrepancies)

	for _, d := range discrepancies {
		logger.WarnCtx(ctx, "Ledger discrepancy",
			zap.String("address", d.WalletAddress),
			zap.Int64("total_xp", d.TotalXP),
			zap.Int64("ledger_xp", d.LedgerXP),
			zap.Int("level", d.Level),
			zap.Int("expected_level", domain.LevelForXP(d.TotalXP)))
	}

	logger.InfoCtx(ctx, "Reconciliation cycle completed",
		zap.Duration("duration", r.clock.Since(startTime)),
		zap.Uint64("from_block", result.FromBlock),
		zap.Uint64("to_block", result.ToBlock),
		zap.Int("events", result.Events),
		zap.Int("failed", result.Failed),
		zap.Bool("cursor_advanced", result.CursorAdvanced),
		zap.Int("discrepancies", result.Discrepancies))

	return result, nil
}
