package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/starford/mdnorm/internal/aliases"
	"github.com/starford/mdnorm/internal/apperr"
	"github.com/starford/mdnorm/internal/models"
	"github.com/starford/mdnorm/internal/resolve"
	"github.com/starford/mdnorm/internal/storage"
	"github.com/starford/mdnorm/internal/testutil"
	"github.com/starford/mdnorm/internal/topics"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recorder struct {
	mu       sync.Mutex
	outcomes []models.Outcome
	reports  []*models.Report
}

func (r *recorder) PublishOutcome(o models.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) PublishReport(rep *models.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

// flakyStore wraps a Provider, counting writes and failing reads or writes
// for chosen paths. onRead, when set, runs before every read.
type flakyStore struct {
	storage.Provider
	failRead  string
	failWrite string
	onRead    func(path string)

	mu     sync.Mutex
	writes []string
}

func (f *flakyStore) Read(path string) ([]byte, error) {
	if f.onRead != nil {
		f.onRead(path)
	}
	if path == f.failRead {
		return nil, errors.New("disk on fire")
	}
	return f.Provider.Read(path)
}

func (f *flakyStore) Write(path string, content []byte) error {
	if path == f.failWrite {
		return errors.New("read-only file system")
	}
	f.mu.Lock()
	f.writes = append(f.writes, path)
	f.mu.Unlock()
	return f.Provider.Write(path, content)
}

func (f *flakyStore) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func newService(store storage.Provider, settings Settings, opts ...Option) *Service {
	opts = append([]Option{WithLogger(quiet)}, opts...)
	return New(store, aliases.New(), topics.New("robotics"), settings, opts...)
}

func TestRun_EndToEnd(t *testing.T) {
	dir, store := testutil.TestCorpus(t, map[string]string{
		"posts/a.md": "See [[b]] and [empty]()\n\nAll about robotics.\n",
		"posts/b.md": "Plain text.\n",
	})
	svc := newService(store, Settings{Workers: 4})

	rep, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Processed != 2 || rep.Changed != 1 || rep.Unchanged != 1 || rep.Failed() != 0 {
		t.Errorf("report = %+v", rep)
	}
	if rep.RunID == "" {
		t.Error("expected run id")
	}

	want := "---\ntags:\n  - robotics\n---\nSee [b](./posts/b.md) and empty\n\nAll about robotics.\n"
	if got := testutil.ReadFile(t, dir, "posts/a.md"); got != want {
		t.Errorf("a.md =\n%q\nwant\n%q", got, want)
	}
	if got := testutil.ReadFile(t, dir, "posts/b.md"); got != "Plain text.\n" {
		t.Errorf("b.md modified: %q", got)
	}

	// A second pass over normalised output changes nothing.
	rep, err = svc.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rep.Changed != 0 || rep.Unchanged != 2 {
		t.Errorf("second report = %+v", rep)
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	in := "[gone](missing.md) robotics\n"
	dir, store := testutil.TestCorpus(t, map[string]string{"a.md": in})
	svc := newService(store, Settings{DryRun: true})

	rep, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.DryRun || rep.Changed != 1 {
		t.Errorf("report = %+v", rep)
	}
	if got := testutil.ReadFile(t, dir, "a.md"); got != in {
		t.Errorf("dry run wrote file: %q", got)
	}
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	_, store := testutil.TestCorpus(t, map[string]string{
		"bad.md":  "---\n: invalid: yaml: {{{\n---\nbody\n",
		"good.md": "robotics\n",
	})
	svc := newService(store, Settings{Workers: 2})

	rep, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Processed != 2 || rep.Changed != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Path != "bad.md" || rep.Failures[0].Kind != "parse" {
		t.Errorf("failures = %+v", rep.Failures)
	}
}

func TestRun_ReportsCollisions(t *testing.T) {
	_, store := testutil.TestCorpus(t, map[string]string{
		"notes/x.md": "n\n",
		"posts/x.md": "p\n",
	})
	rep, err := newService(store, Settings{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Collisions) != 1 || rep.Collisions[0].Winner != "notes/x.md" {
		t.Errorf("collisions = %+v", rep.Collisions)
	}
}

func TestRun_IncrementalSkipsUnchangedInputs(t *testing.T) {
	dir, store := testutil.TestCorpus(t, map[string]string{
		"a.md": "robotics\n",
		"b.md": "plain\n",
	})
	db := testutil.TestLedger(t)
	svc := newService(store, Settings{}, WithLedger(db))

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	rep, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rep.Skipped != 2 {
		t.Errorf("expected both documents skipped, got %+v", rep)
	}

	testutil.WriteFile(t, dir, "b.md", "now about robotics\n")
	rep, err = svc.Run(context.Background())
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if rep.Skipped != 1 || rep.Changed != 1 {
		t.Errorf("expected b.md reprocessed, got %+v", rep)
	}

	// New topics change the fingerprint, so nothing is skipped.
	other := New(store, aliases.New(), topics.New("robotics", "plain"), Settings{}, WithLedger(db), WithLogger(quiet))
	rep, err = other.Run(context.Background())
	if err != nil {
		t.Fatalf("fourth Run: %v", err)
	}
	if rep.Skipped != 0 {
		t.Errorf("fingerprint change should disable skipping, got %+v", rep)
	}

	runs, err := svc.Runs(10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 4 {
		t.Errorf("expected 4 recorded runs, got %d", len(runs))
	}
}

func TestRun_CancelledBeforeDispatch(t *testing.T) {
	_, store := testutil.TestCorpus(t, map[string]string{"a.md": "robotics\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := newService(store, Settings{}).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Cancelled || rep.Processed != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRun_CancelledMidRun(t *testing.T) {
	dir, base := testutil.TestCorpus(t, map[string]string{
		"a.md": "robotics\n",
		"b.md": "robotics\n",
		"c.md": "robotics\n",
	})
	started := make(chan string, 1)
	release := make(chan struct{})
	var once sync.Once
	store := &flakyStore{Provider: base, onRead: func(path string) {
		once.Do(func() {
			started <- path
			<-release
		})
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	type result struct {
		rep *models.Report
		err error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := newService(store, Settings{Workers: 1}).Run(ctx)
		done <- result{rep, err}
	}()

	first := <-started
	cancel()
	close(release)

	res := <-done
	if res.err != nil {
		t.Fatalf("Run: %v", res.err)
	}
	if !res.rep.Cancelled || res.rep.Processed != 1 || res.rep.Changed != 1 {
		t.Errorf("report = %+v", res.rep)
	}
	// The in-flight document is finished; nothing after it is started.
	if got := store.written(); len(got) != 1 || got[0] != first {
		t.Errorf("writes = %v, want [%s]", got, first)
	}
	for _, p := range []string{"a.md", "b.md", "c.md"} {
		if p == first {
			continue
		}
		if got := testutil.ReadFile(t, dir, p); got != "robotics\n" {
			t.Errorf("%s modified after cancel: %q", p, got)
		}
	}
}

func TestRun_ReadAndWriteFailuresAreIsolated(t *testing.T) {
	dir, base := testutil.TestCorpus(t, map[string]string{
		"a.md": "robotics\n",
		"b.md": "robotics\n",
		"c.md": "robotics\n",
	})
	store := &flakyStore{Provider: base, failWrite: "a.md", failRead: "b.md"}

	rep, err := newService(store, Settings{Workers: 3}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Processed != 3 || rep.Changed != 1 || rep.Failed() != 2 {
		t.Errorf("report = %+v", rep)
	}
	want := []models.Failure{
		{Path: "a.md", Kind: "write"},
		{Path: "b.md", Kind: "read"},
	}
	if len(rep.Failures) != len(want) {
		t.Fatalf("failures = %+v", rep.Failures)
	}
	for i, f := range rep.Failures {
		if f.Path != want[i].Path || f.Kind != want[i].Kind || f.Error == "" {
			t.Errorf("failure %d = %+v, want %s/%s", i, f, want[i].Path, want[i].Kind)
		}
	}
	if got := testutil.ReadFile(t, dir, "a.md"); got != "robotics\n" {
		t.Errorf("a.md = %q, want original content after failed write", got)
	}
	if got := testutil.ReadFile(t, dir, "c.md"); got != "---\ntags:\n  - robotics\n---\nrobotics\n" {
		t.Errorf("c.md = %q", got)
	}
}

func TestRun_UnchangedDocumentsAreNotWritten(t *testing.T) {
	_, base := testutil.TestCorpus(t, map[string]string{
		"a.md": "robotics\n",
		"b.md": "plain\n",
	})
	store := &flakyStore{Provider: base}
	svc := newService(store, Settings{Workers: 2})

	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if got := store.written(); len(got) != 1 || got[0] != "a.md" {
		t.Fatalf("first run writes = %v, want [a.md]", got)
	}

	rep, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rep.Unchanged != 2 {
		t.Errorf("report = %+v", rep)
	}
	if got := store.written(); len(got) != 1 {
		t.Errorf("normalised corpus was written again: %v", got)
	}
}

func TestRun_Notifier(t *testing.T) {
	_, store := testutil.TestCorpus(t, map[string]string{
		"a.md":   "robotics\n",
		"b.md":   "plain\n",
		"bad.md": "---\n: invalid: yaml: {{{\n---\n",
	})
	rec := &recorder{}
	if _, err := newService(store, Settings{}, WithNotifier(rec)).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.outcomes) != 2 {
		t.Errorf("expected changed and failed outcomes only, got %+v", rec.outcomes)
	}
	if len(rec.reports) != 1 {
		t.Errorf("expected one report, got %d", len(rec.reports))
	}
}

func TestTryRun_Conflict(t *testing.T) {
	_, store := testutil.TestCorpus(t, nil)
	svc := newService(store, Settings{})
	svc.mu.Lock()
	_, err := svc.TryRun(context.Background())
	svc.mu.Unlock()
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestLatest_InMemory(t *testing.T) {
	_, store := testutil.TestCorpus(t, map[string]string{"a.md": "x\n"})
	svc := newService(store, Settings{})
	if _, err := svc.Latest(); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	rep, _ := svc.Run(context.Background())
	got, err := svc.Latest()
	if err != nil || got.RunID != rep.RunID {
		t.Errorf("Latest = %+v, %v", got, err)
	}
	if _, err := svc.RunByID(rep.RunID); err != nil {
		t.Errorf("RunByID: %v", err)
	}
	if _, err := svc.RunByID("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("RunByID(nope) err = %v", err)
	}
}

func TestPreview(t *testing.T) {
	dir, store := testutil.TestCorpus(t, map[string]string{"posts/b.md": "b\n"})
	svc := newService(store, Settings{})

	res, err := svc.Preview("posts/new.md", []byte("[[b]] robotics"))
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	want := "---\ntags:\n  - robotics\n---\n[b](./posts/b.md) robotics"
	if string(res.Output) != want {
		t.Errorf("output = %q", res.Output)
	}
	if got := testutil.ReadFile(t, dir, "posts/b.md"); got != "b\n" {
		t.Errorf("preview touched corpus: %q", got)
	}
}

func TestResolveReference(t *testing.T) {
	_, store := testutil.TestCorpus(t, map[string]string{"posts/b.md": "b\n"})
	svc := newService(store, Settings{})

	d, err := svc.ResolveReference("b|Bee")
	if err != nil {
		t.Fatalf("ResolveReference: %v", err)
	}
	if d.Action != resolve.Rewrite || d.Text != "[Bee](./posts/b.md)" {
		t.Errorf("decision = %+v", d)
	}
	d, _ = svc.ResolveReference("Unknown")
	if d.Action != resolve.Keep || d.Text != "[[Unknown]]" {
		t.Errorf("unknown decision = %+v", d)
	}
	if _, err := svc.ResolveReference("a]]b"); err == nil {
		t.Error("expected error for malformed reference")
	}
}
