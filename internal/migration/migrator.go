// Package migration orchestrates the one-way V1 to V2 run. Phases execute
// in strict dependency order; within a phase, independent records fan out to
// a bounded worker pool and every failure is contained at the record
// boundary. Only infrastructure faults abort a run.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zoea-africa/v2-migrate/internal/config"
	"github.com/zoea-africa/v2-migrate/internal/grouping"
	"github.com/zoea-africa/v2-migrate/internal/location"
	"github.com/zoea-africa/v2-migrate/internal/media"
	"github.com/zoea-africa/v2-migrate/internal/refdata"
	"github.com/zoea-africa/v2-migrate/internal/resolve"
	"github.com/zoea-africa/v2-migrate/internal/source"
	"github.com/zoea-africa/v2-migrate/internal/target"
)

// Phase states.
const (
	StateNotStarted = "not_started"
	StateRunning    = "running"
	StateCompleted  = "completed"
	StateAborted    = "aborted"
)

// PhaseResult accumulates record outcomes for one phase. Counters only ever
// grow; workers increment them concurrently. A skipped record counts as a
// success, so reruns report the same totals as the first run.
type PhaseResult struct {
	success atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

func (p *PhaseResult) Success() int64 { return p.success.Load() }
func (p *PhaseResult) Failed() int64  { return p.failed.Load() }
func (p *PhaseResult) Skipped() int64 { return p.skipped.Load() }

// Report collects one PhaseResult per executed phase, in execution order.
type Report struct {
	order  []string
	phases map[string]*PhaseResult
}

func newReport(phases []string) *Report {
	r := &Report{phases: make(map[string]*PhaseResult, len(phases))}
	for _, p := range phases {
		r.order = append(r.order, p)
		r.phases[p] = &PhaseResult{}
	}
	return r
}

// Phases returns the executed phase names in order.
func (r *Report) Phases() []string { return r.order }

// Phase returns the result for a phase, nil if the phase was not targeted.
func (r *Report) Phase(name string) *PhaseResult { return r.phases[name] }

// TotalFailed sums residual failures across all phases. Zero means the run
// may exit 0.
func (r *Report) TotalFailed() int64 {
	var n int64
	for _, p := range r.phases {
		n += p.Failed()
	}
	return n
}

// Migrator wires the extractor, cleaner, resolver, grouper, verifier and
// writer into the phased run.
type Migrator struct {
	cfg       *config.Config
	src       *source.DB
	store     *target.Store
	tables    *refdata.Tables
	locations *location.Mapper
	grouper   *grouping.Grouper
	resolver  *resolve.Resolver
	verifier  *media.Verifier
	metrics   *Collector
	logger    *zap.Logger

	mu     sync.Mutex
	states map[string]string
}

func New(cfg *config.Config, src *source.DB, store *target.Store, tables *refdata.Tables, metrics *Collector, logger *zap.Logger) (*Migrator, error) {
	strategy, err := grouping.ParseStrategy(cfg.GroupingStrategy)
	if err != nil {
		return nil, err
	}

	locations := location.NewMapper(store, tables, logger)
	states := make(map[string]string, len(config.AllPhases))
	for _, p := range config.AllPhases {
		states[p] = StateNotStarted
	}

	verifier := media.NewVerifier(cfg.AssetBaseURL, time.Duration(cfg.AssetTimeoutSec)*time.Second, logger)
	verifier.OnProbe(metrics.RecordMediaProbe)

	return &Migrator{
		cfg:       cfg,
		src:       src,
		store:     store,
		tables:    tables,
		locations: locations,
		grouper:   grouping.New(store, locations, tables, strategy, logger),
		resolver:  resolve.New(store, tables.Defaults.PhonePrefix, logger),
		verifier:  verifier,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "migrator")),
		states:    states,
	}, nil
}

// Run executes the targeted phases in dependency order. A cancelled context
// stops scheduling new records, lets in-flight writes finish and returns the
// partial report together with the context error. Any other returned error
// is an infrastructure fault; per-record problems only ever surface as
// failure counts.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	phases := m.cfg.EffectivePhases()
	report := newReport(phases)

	m.logger.Info("Starting migration run",
		zap.Strings("phases", phases),
		zap.Int("workers", m.cfg.Workers))

	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		m.setState(phase, StateRunning)
		m.metrics.PhaseStarted(phase)
		start := time.Now()

		res := report.Phase(phase)
		var err error
		switch phase {
		case "countries":
			err = m.runCountries(ctx, res)
		case "cities":
			err = m.runCities(ctx, res)
		case "users":
			err = m.runUsers(ctx, res)
		case "venues":
			err = m.runVenues(ctx, res)
		case "bookings":
			err = m.runBookings(ctx, res)
		case "reviews":
			err = m.runReviews(ctx, res)
		case "favorites":
			err = m.runFavorites(ctx, res)
		}

		m.metrics.ObservePhase(phase, time.Since(start).Seconds())
		m.metrics.PhaseFinished(phase)

		if err != nil {
			m.setState(phase, StateAborted)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				m.logger.Warn("Run cancelled, returning partial results",
					zap.String("phase", phase))
				return report, err
			}
			return report, fmt.Errorf("phase %s: %w", phase, err)
		}

		m.setState(phase, StateCompleted)
		m.logger.Info("Phase completed",
			zap.String("phase", phase),
			zap.Int64("success", res.Success()),
			zap.Int64("failed", res.Failed()),
			zap.Int64("skipped", res.Skipped()),
			zap.Duration("took", time.Since(start)))
	}

	m.logger.Info("Migration run finished",
		zap.Int64("residual_failures", report.TotalFailed()))
	return report, nil
}

// PhaseState reports where a phase currently stands.
func (m *Migrator) PhaseState(phase string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[phase]
}

func (m *Migrator) setState(phase, state string) {
	m.mu.Lock()
	m.states[phase] = state
	m.mu.Unlock()
}

// pool fans record work out to a bounded set of workers. feed streams the
// phase's records, calling submit once per record; it returns when the
// source cursor is drained or the context is cancelled. pool returns after
// every submitted task has finished.
func (m *Migrator) pool(ctx context.Context, feed func(submit func(func())) error) error {
	g := new(errgroup.Group)
	g.SetLimit(m.cfg.Workers)

	err := feed(func(task func()) {
		g.Go(func() error {
			task()
			return nil
		})
	})
	_ = g.Wait()
	return err
}

// progressBar returns a started bar for total records, or nil when progress
// output is disabled or the total is unknown.
func (m *Migrator) progressBar(total int64) *pb.ProgressBar {
	if !m.cfg.Progress || total <= 0 {
		return nil
	}
	return pb.Full.Start64(total)
}

func tick(bar *pb.ProgressBar) {
	if bar != nil {
		bar.Increment()
	}
}

func finish(bar *pb.ProgressBar) {
	if bar != nil {
		bar.Finish()
	}
}

func (m *Migrator) markMigrated(phase string, res *PhaseResult) {
	res.success.Add(1)
	m.metrics.RecordOutcome(phase, OutcomeMigrated)
}

func (m *Migrator) markSkipped(phase string, res *PhaseResult, legacyID int64) {
	res.success.Add(1)
	res.skipped.Add(1)
	m.metrics.RecordOutcome(phase, OutcomeSkipped)
	m.logger.Debug("Record already migrated, skipping",
		zap.String("phase", phase),
		zap.Int64("legacy_id", legacyID))
}

func (m *Migrator) markFailed(phase string, res *PhaseResult, legacyID int64, reason string, err error) {
	res.failed.Add(1)
	m.metrics.RecordOutcome(phase, OutcomeFailed)
	m.logger.Error("Record failed",
		zap.String("phase", phase),
		zap.Int64("legacy_id", legacyID),
		zap.String("reason", reason),
		zap.Error(err))
}

// legacyTime decodes the legacy datetime and date text columns. The
// zero-date sentinel '0000-00-00' and anything unparseable yield fallback.
func legacyTime(ns sql.NullString, fallback time.Time) time.Time {
	if !ns.Valid {
		return fallback
	}
	if t, ok := parseLegacyDate(ns.String); ok {
		return t
	}
	return fallback
}

func parseLegacyDate(s string) (time.Time, bool) {
	if s == "" || s == "0000-00-00" || s == "0000-00-00 00:00:00" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
