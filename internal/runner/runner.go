// Package runner drives a normalisation run over the whole corpus: it builds
// the per-run document index, fans documents out to a bounded worker pool,
// and collects the outcomes into a report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mdnorm/internal/aliases"
	"github.com/starford/mdnorm/internal/apperr"
	"github.com/starford/mdnorm/internal/checksum"
	"github.com/starford/mdnorm/internal/docindex"
	"github.com/starford/mdnorm/internal/ledger"
	"github.com/starford/mdnorm/internal/models"
	"github.com/starford/mdnorm/internal/normalizer"
	"github.com/starford/mdnorm/internal/resolve"
	"github.com/starford/mdnorm/internal/storage"
	"github.com/starford/mdnorm/internal/topics"
)

// Notifier receives live run events. PublishOutcome is called from workers
// and must not block; PublishReport is called once per run after the pool
// has drained.
type Notifier interface {
	PublishOutcome(o models.Outcome)
	PublishReport(r *models.Report)
}

// Settings controls a run.
type Settings struct {
	Extension string
	Workers   int
	DryRun    bool
	Options   normalizer.Options
}

// Service runs normalisation passes. Runs are serialised; the indices for
// aliases and topics are loaded once by the caller and shared by every run.
type Service struct {
	store    storage.Provider
	ledger   ledger.Store
	notifier Notifier
	logger   *slog.Logger
	settings Settings
	aliases  *aliases.Index
	topics   *topics.Set

	mu   sync.Mutex // held for the duration of a run
	last struct {
		sync.RWMutex
		report *models.Report
	}
}

// Option configures a Service.
type Option func(*Service)

// WithLedger enables incremental runs and run history.
func WithLedger(l ledger.Store) Option {
	return func(s *Service) { s.ledger = l }
}

// WithNotifier publishes per-document and end-of-run events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a runner over store.
func New(store storage.Provider, a *aliases.Index, ts *topics.Set, settings Settings, opts ...Option) *Service {
	if settings.Extension == "" {
		settings.Extension = ".md"
	}
	if settings.Workers <= 0 {
		settings.Workers = 1
	}
	s := &Service{
		store:    store,
		settings: settings,
		aliases:  a,
		topics:   ts,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TryRun starts a run unless one is already in progress, in which case it
// returns apperr.ErrConflict.
func (s *Service) TryRun(ctx context.Context) (*models.Report, error) {
	if !s.mu.TryLock() {
		return nil, apperr.ErrConflict
	}
	defer s.mu.Unlock()
	return s.run(ctx)
}

// Run performs one pass over the corpus, waiting for any run in progress.
// Per-document failures are reported, not returned; the error is non-nil only
// when the corpus itself cannot be listed.
func (s *Service) Run(ctx context.Context) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx)
}

func (s *Service) run(ctx context.Context) (*models.Report, error) {
	report := &models.Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		DryRun:    s.settings.DryRun,
		Failures:  []models.Failure{},
	}
	logger := s.logger.With(slog.String("run_id", report.RunID))

	metas, err := s.store.List("", s.settings.Extension)
	if err != nil {
		return nil, fmt.Errorf("runner: list corpus: %w", err)
	}

	docs := docindex.FromMetadata(metas)
	report.Collisions = docs.Collisions()
	for _, c := range report.Collisions {
		logger.Warn("short name collision",
			slog.String("short_name", c.ShortName),
			slog.String("winner", c.Winner),
			slog.String("losers", strings.Join(c.Losers, ",")))
	}

	var (
		fingerprint string
		states      map[string]models.DocumentState
	)
	if s.ledger != nil {
		if fingerprint, err = s.fingerprint(docs); err != nil {
			return nil, err
		}
		if states, err = s.ledger.DocumentStates(); err != nil {
			logger.Warn("ledger: load document states failed", slog.String("error", err.Error()))
		}
	}

	proc := normalizer.New(normalizer.Indices{
		Aliases: s.aliases,
		Topics:  s.topics,
		Docs:    docs,
	}, resolve.CheckerFunc(s.store.Exists), s.settings.Options)

	logger.Info("run started",
		slog.Int("documents", len(metas)),
		slog.Int("workers", s.settings.Workers),
		slog.Bool("dry_run", s.settings.DryRun))

	outcomes := make([]models.Outcome, len(metas))
	next := make([]*models.DocumentState, len(metas))

	var g errgroup.Group
	g.SetLimit(s.settings.Workers)
	for i, m := range metas {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil // cancelled while waiting for a worker
			}
			w := work{proc: proc, meta: m, fingerprint: fingerprint, logger: logger}
			if prev, ok := states[m.Path]; ok && fingerprint != "" &&
				prev.Checksum == m.Checksum && prev.Fingerprint == fingerprint {
				outcomes[i] = models.Outcome{Path: m.Path, Status: models.StatusSkipped}
				return nil
			}
			outcomes[i], next[i] = s.processOne(w)
			s.publishOutcome(outcomes[i])
			return nil
		})
	}
	_ = g.Wait() // workers report failures through outcomes

	var keep []models.DocumentState
	for i, o := range outcomes {
		if o.Path == "" {
			continue // not dispatched
		}
		report.Processed++
		switch o.Status {
		case models.StatusChanged:
			report.Changed++
		case models.StatusUnchanged:
			report.Unchanged++
		case models.StatusSkipped:
			report.Skipped++
		case models.StatusFailed:
			report.Failures = append(report.Failures, models.Failure{Path: o.Path, Kind: o.ErrorKind, Error: o.Error})
		}
		if next[i] != nil {
			keep = append(keep, *next[i])
		}
	}
	report.Cancelled = ctx.Err() != nil && report.Processed < len(metas)
	report.FinishedAt = time.Now().UTC()

	if s.ledger != nil {
		s.record(logger, report, metas, keep)
	}
	s.remember(report)
	if s.notifier != nil {
		s.notifier.PublishReport(report)
	}

	logger.Info("run finished",
		slog.Int("processed", report.Processed),
		slog.Int("changed", report.Changed),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed()),
		slog.Bool("cancelled", report.Cancelled),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

type work struct {
	proc        *normalizer.Processor
	meta        models.DocumentMetadata
	fingerprint string
	logger      *slog.Logger
}

// processOne reads, normalises and (unless dry-running) writes a single
// document. The returned state is nil when nothing should be recorded.
func (s *Service) processOne(w work) (models.Outcome, *models.DocumentState) {
	path := w.meta.Path
	out := models.Outcome{Path: path}

	data, err := s.store.Read(path)
	if err != nil {
		return s.fail(w.logger, out, apperr.NewDocumentError(apperr.ErrDocumentRead, path, err)), nil
	}

	res, err := w.proc.Process(path, data)
	if err != nil {
		return s.fail(w.logger, out, err), nil
	}
	out.AddedTags = res.AddedTags
	out.Rewrites, out.Drops = res.Counts()
	for _, a := range res.Applied {
		w.logger.Debug("reference "+a.Action.String(),
			slog.String("path", path),
			slog.String("kind", a.Kind.String()),
			slog.String("raw", a.Raw),
			slog.String("result", a.Result),
			slog.String("reason", a.Reason))
	}

	final := data
	if res.Changed {
		out.Status = models.StatusChanged
		if !s.settings.DryRun {
			if err := s.store.Write(path, res.Output); err != nil {
				return s.fail(w.logger, out, apperr.NewDocumentError(apperr.ErrDocumentWrite, path, err)), nil
			}
			final = res.Output
			w.logger.Info("document written",
				slog.String("path", path),
				slog.Int("rewrites", out.Rewrites),
				slog.Int("drops", out.Drops),
				slog.String("added_tags", strings.Join(out.AddedTags, ",")))
		}
	} else {
		out.Status = models.StatusUnchanged
	}

	if s.settings.DryRun || w.fingerprint == "" {
		return out, nil
	}
	return out, &models.DocumentState{Path: path, Checksum: checksum.Sum(final), Fingerprint: w.fingerprint}
}

func (s *Service) fail(logger *slog.Logger, out models.Outcome, err error) models.Outcome {
	out.Status = models.StatusFailed
	out.Error = err.Error()
	out.ErrorKind = apperr.KindName(err)
	logger.Warn("document failed",
		slog.String("path", out.Path),
		slog.String("kind", out.ErrorKind),
		slog.String("error", err.Error()))
	return out
}

func (s *Service) publishOutcome(o models.Outcome) {
	if s.notifier == nil {
		return
	}
	if o.Status == models.StatusChanged || o.Status == models.StatusFailed {
		s.notifier.PublishOutcome(o)
	}
}

// fingerprint digests every input that can change a document's output other
// than the document itself: aliases, topics, the set of corpus files that
// links may point to, and the processing options.
func (s *Service) fingerprint(docs *docindex.Index) (string, error) {
	files, err := s.store.List("", "")
	if err != nil {
		return "", fmt.Errorf("runner: list corpus files: %w", err)
	}
	parts := []string{"aliases"}
	for _, e := range s.aliases.Entries() {
		parts = append(parts, e.Label, e.Target)
	}
	parts = append(parts, "topics")
	parts = append(parts, s.topics.List()...)
	parts = append(parts, "documents")
	for _, r := range docs.Records() {
		parts = append(parts, r.ShortName, r.Path)
	}
	parts = append(parts, "files")
	for _, f := range files {
		parts = append(parts, f.Path)
	}
	o := s.settings.Options
	parts = append(parts, "options",
		strconv.FormatBool(o.IgnoreCase),
		strconv.FormatBool(o.SkipCode),
		strings.Join(o.ExternalPrefixes, "\x00"),
		s.settings.Extension)
	return checksum.Fingerprint(parts...), nil
}

func (s *Service) record(logger *slog.Logger, report *models.Report, metas []models.DocumentMetadata, states []models.DocumentState) {
	if err := s.ledger.RecordRun(report, states); err != nil {
		logger.Warn("ledger: record run failed", slog.String("error", err.Error()))
		return
	}
	if report.DryRun || report.Cancelled {
		return
	}
	present := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		present[m.Path] = struct{}{}
	}
	if err := s.ledger.ForgetDocuments(present); err != nil {
		logger.Warn("ledger: prune documents failed", slog.String("error", err.Error()))
	}
}

func (s *Service) remember(r *models.Report) {
	s.last.Lock()
	s.last.report = r
	s.last.Unlock()
}

// Latest returns the most recent run report, from the ledger when enabled
// and otherwise from memory. apperr.ErrNotFound when no run has completed.
func (s *Service) Latest() (*models.Report, error) {
	if s.ledger != nil {
		runs, err := s.ledger.ListRuns(1)
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, apperr.ErrNotFound
		}
		return &runs[0], nil
	}
	s.last.RLock()
	defer s.last.RUnlock()
	if s.last.report == nil {
		return nil, apperr.ErrNotFound
	}
	return s.last.report, nil
}

// Runs lists recent run reports, newest first.
func (s *Service) Runs(limit int) ([]models.Report, error) {
	if s.ledger != nil {
		return s.ledger.ListRuns(limit)
	}
	r, err := s.Latest()
	if errors.Is(err, apperr.ErrNotFound) {
		return []models.Report{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []models.Report{*r}, nil
}

// RunByID returns one recorded run by id.
func (s *Service) RunByID(id string) (*models.Report, error) {
	if s.ledger != nil {
		return s.ledger.GetRun(id)
	}
	r, err := s.Latest()
	if err != nil || r.RunID != id {
		return nil, apperr.ErrNotFound
	}
	return r, nil
}
