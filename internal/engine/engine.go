/*
Package engine wires the learning, analytics and verification components into
the operations exposed to callers.

An Engine owns one Learner, one Analyzer and one verification Tracker. When a
store is configured the engine warm-starts from it and writes every mutation
back, through a background journal or synchronously. Persistence failures are
logged and never fail an operation.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/khanglvm/flowlearn/internal/analytics"
	"github.com/khanglvm/flowlearn/internal/config"
	"github.com/khanglvm/flowlearn/internal/learning"
	"github.com/khanglvm/flowlearn/internal/logging"
	"github.com/khanglvm/flowlearn/internal/metrics"
	"github.com/khanglvm/flowlearn/internal/search"
	"github.com/khanglvm/flowlearn/internal/storage"
	"github.com/khanglvm/flowlearn/internal/verification"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidRequest is returned for requests missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

// Options configures an Engine.
type Options struct {
	Learning  learning.Config
	Analytics analytics.Config

	// Store persists state. Nil keeps everything in memory.
	Store storage.Storage

	// Journal writes records in the background instead of synchronously.
	Journal bool

	// Retention, when positive, removes persisted history older than it
	// during New.
	Retention time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// DefaultOptions returns in-memory options with default thresholds.
func DefaultOptions() Options {
	return Options{
		Learning:  learning.DefaultConfig(),
		Analytics: analytics.DefaultConfig(),
	}
}

// OptionsFromConfig maps a loaded configuration onto Options. The store is
// left nil; callers open it from cfg.Storage.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.Learning = learning.Config{
		LearningThreshold:       cfg.Learning.LearningThreshold,
		ConfidenceThreshold:     cfg.Learning.ConfidenceThreshold,
		SimilarityThreshold:     cfg.Learning.SimilarityThreshold,
		SuggestionMinConfidence: cfg.Learning.SuggestionMinConfidence,
		InitialConfidence:       cfg.Learning.InitialConfidence,
		RecentWindow:            cfg.Learning.RecentWindow,
	}
	opts.Analytics.PreferenceWindow = cfg.Analytics.PreferenceWindow
	opts.Analytics.RecentWindow = cfg.Analytics.RecentWindow
	opts.Analytics.MaxCombinationTools = cfg.Analytics.MaxCombinationTools
	opts.Journal = cfg.Storage.Journal
	opts.Retention = cfg.Storage.Retention
	return opts
}

// Engine is the facade over the learning components. It is safe for
// concurrent use.
type Engine struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate

	patterns *learning.MemoryRepository
	learner  *learning.Learner
	usage    *analytics.MemoryRepository
	analyzer *analytics.Analyzer
	tracker  *verification.Tracker
	index    *search.Indexer

	store   storage.Storage
	journal *storage.Journal
}

// New builds an engine and, when opts.Store is set, loads the persisted
// state into it. A store that cannot be initialised or read leaves the
// engine running in memory.
func New(ctx context.Context, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Learning == (learning.Config{}) {
		opts.Learning = learning.DefaultConfig()
	}
	if opts.Analytics.MaxCombinationTools <= 0 {
		opts.Analytics.MaxCombinationTools = analytics.DefaultConfig().MaxCombinationTools
	}
	if opts.Analytics.RecentWindow <= 0 {
		opts.Analytics.RecentWindow = analytics.DefaultConfig().RecentWindow
	}
	if opts.Analytics.MinReliableUses <= 0 {
		opts.Analytics.MinReliableUses = analytics.DefaultConfig().MinReliableUses
	}

	index, err := search.NewIndexer()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		logger:   logger,
		metrics:  opts.Metrics,
		validate: validator.New(),
		patterns: learning.NewMemoryRepository(),
		usage:    analytics.NewMemoryRepository(),
		tracker:  verification.NewTracker(logger.Named("verification")),
		index:    index,
		store:    opts.Store,
	}

	var snap storage.Snapshot
	if e.store != nil {
		snap = e.warmStart(ctx, opts.Retention)
	}
	for _, m := range snap.FeedbackMetrics {
		e.usage.AppendFeedback(m)
	}

	e.learner = learning.NewLearner(opts.Learning, e.patterns, logger.Named("learning"))
	e.analyzer = analytics.NewAnalyzer(opts.Analytics, e.usage, logger.Named("analytics"))
	if len(snap.Patterns) > 0 || len(snap.Executions) > 0 {
		e.learner.Load(snap.Patterns, snap.Executions)
		e.reindex(ctx, e.patterns.List()...)
	}
	if len(snap.Usages) > 0 || len(snap.Combinations) > 0 {
		e.analyzer.Load(snap.Usages, snap.Combinations)
	}
	if len(snap.Metrics) > 0 {
		e.tracker.Replay(snap.Metrics)
	}

	if e.store != nil && opts.Journal {
		e.journal = storage.NewJournal(e.store, logger.Named("journal"))
	}
	return e, nil
}

// warmStart initialises the store, applies retention and reads it back.
func (e *Engine) warmStart(ctx context.Context, retention time.Duration) storage.Snapshot {
	if err := e.store.Init(); err != nil {
		e.logger.Warn("storage unavailable, running in memory", zap.Error(err))
		return storage.Snapshot{}
	}
	if retention > 0 {
		n, err := e.store.Cleanup(ctx, retention)
		if err != nil {
			e.logger.Warn("retention cleanup failed", zap.Error(err))
		} else if n > 0 {
			e.logger.Info("removed expired history", zap.Int64("rows", n), zap.Duration("retention", retention))
		}
	}
	snap, err := e.store.Load(ctx)
	if err != nil {
		e.logger.Warn("failed to load persisted state", zap.Error(err))
		return storage.Snapshot{}
	}
	e.logger.Info("loaded persisted state",
		zap.Int("patterns", len(snap.Patterns)),
		zap.Int("pattern_executions", len(snap.Executions)),
		zap.Int("tool_usages", len(snap.Usages)),
		zap.Int("execution_metrics", len(snap.Metrics)))
	return snap
}

// Close flushes the journal and closes the search index and the store.
func (e *Engine) Close() error {
	if e.journal != nil {
		e.journal.Stop()
	}
	if err := e.index.Close(); err != nil {
		e.logger.Warn("failed to close search index", zap.Error(err))
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			return fmt.Errorf("close storage: %w", err)
		}
	}
	return nil
}

// persist hands records to the journal, or writes them directly when no
// journal runs.
func (e *Engine) persist(ctx context.Context, records ...storage.Record) {
	if e.store == nil || len(records) == 0 {
		return
	}
	if e.journal != nil {
		e.journal.Append(records...)
		return
	}
	if err := e.store.Write(ctx, records); err != nil {
		logging.For(ctx, e.logger).Warn("failed to persist records",
			zap.Int("records", len(records)), zap.Error(err))
	}
}

// reindex updates the search index. Index failures only cost search
// freshness.
func (e *Engine) reindex(ctx context.Context, patterns ...learning.WorkflowPattern) {
	if err := e.index.IndexPatterns(patterns...); err != nil {
		logging.For(ctx, e.logger).Warn("failed to index patterns",
			zap.Int("patterns", len(patterns)), zap.Error(err))
	}
}

// Snapshot returns the complete in-memory state.
func (e *Engine) Snapshot() storage.Snapshot {
	return storage.Snapshot{
		Patterns:        e.patterns.List(),
		Executions:      e.learner.Executions(),
		Usages:          e.usage.Usages(),
		Combinations:    e.usage.Combinations(),
		FeedbackMetrics: e.usage.FeedbackMetrics(),
		Metrics:         e.tracker.Executions(""),
	}
}

// Status describes the engine's persistence state.
type Status struct {
	Patterns        int            `json:"patterns"`
	Executions      int            `json:"executions"`
	Storage         *storage.Stats `json:"storage,omitempty"`
	JournalQueued   int            `json:"journal_queued"`
	JournalWritten  int64          `json:"journal_written"`
	JournalDropped  int64          `json:"journal_dropped"`
	JournalDisabled bool           `json:"journal_disabled,omitempty"`
}

// Status reports in-memory counts and, when a store is configured, its
// row counts.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	s := Status{
		Patterns:   e.patterns.Len(),
		Executions: len(e.learner.Executions()),
	}
	if e.journal != nil {
		s.JournalQueued = e.journal.QueueSize()
		s.JournalWritten = e.journal.Written()
		s.JournalDropped = e.journal.Dropped()
		s.JournalDisabled = !e.journal.IsEnabled()
	}
	if e.store != nil {
		stats, err := e.store.Stats(ctx)
		if err != nil {
			return s, fmt.Errorf("storage stats: %w", err)
		}
		s.Storage = &stats
	}
	return s, nil
}
