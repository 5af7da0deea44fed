package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/mdnorm/internal/apperr"
	"github.com/starford/mdnorm/internal/models"
	"github.com/starford/mdnorm/internal/testutil"
)

// testConfig lays out a corpus plus alias and topic sources under a temp dir.
func testConfig(t *testing.T, files map[string]string) (*Config, string) {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		testutil.WriteFile(t, dir, "content/"+rel, content)
	}
	testutil.WriteFile(t, dir, "links.yaml", "Go: https://go.dev\n")
	testutil.WriteFile(t, dir, "topics.txt", "# known topics\nrobotics\n")

	cfg := NewDefaultConfig()
	cfg.App.LogLevel = slog.LevelError
	cfg.Corpus.Path = filepath.Join(dir, "content")
	cfg.Sources.Links = filepath.Join(dir, "links.yaml")
	cfg.Sources.Topics = filepath.Join(dir, "topics.txt")
	return cfg, filepath.Join(dir, "content")
}

func TestRun_NormalisesCorpus(t *testing.T) {
	cfg, root := testConfig(t, map[string]string{
		"a.md": "Read [Go](https://golang.org) and [[b]] on robotics.\n",
		"b.md": "b\n",
	})

	var out bytes.Buffer
	if err := Run(context.Background(), WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := "---\ntags:\n  - robotics\n---\nRead [Go](https://go.dev) and [b](./b.md) on robotics.\n"
	if got := testutil.ReadFile(t, root, "a.md"); got != want {
		t.Errorf("a.md =\n%q\nwant\n%q", got, want)
	}
	if !strings.Contains(out.String(), "changed") {
		t.Errorf("summary = %q", out.String())
	}
}

func TestRun_JSONSummary(t *testing.T) {
	cfg, _ := testConfig(t, map[string]string{"a.md": "plain\n"})
	cfg.App.DryRun = true

	var out bytes.Buffer
	if err := Run(context.Background(), WithConfig(cfg), WithOutput(&out), WithJSON(true)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var rep models.Report
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("summary is not JSON: %v\n%s", err, out.String())
	}
	if !rep.DryRun || rep.Processed != 1 || rep.Unchanged != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRun_Strict(t *testing.T) {
	files := map[string]string{
		"bad.md":  "---\n: invalid: yaml: {{{\n---\nbody\n",
		"good.md": "fine\n",
	}

	cfg, _ := testConfig(t, files)
	if err := Run(context.Background(), WithConfig(cfg), WithOutput(&bytes.Buffer{})); err != nil {
		t.Errorf("non-strict run should succeed, got %v", err)
	}

	cfg, _ = testConfig(t, files)
	cfg.App.Strict = true
	err := Run(context.Background(), WithConfig(cfg), WithOutput(&bytes.Buffer{}))
	if !errors.Is(err, ErrDocumentsFailed) {
		t.Errorf("strict run error = %v, want ErrDocumentsFailed", err)
	}
}

func TestRun_MissingSourceIsConfigError(t *testing.T) {
	cfg, _ := testConfig(t, map[string]string{"a.md": "x\n"})
	cfg.Sources.Topics = filepath.Join(t.TempDir(), "absent.txt")

	err := Run(context.Background(), WithConfig(cfg), WithOutput(&bytes.Buffer{}))
	if !errors.Is(err, apperr.ErrConfigLoad) {
		t.Errorf("error = %v, want ErrConfigLoad", err)
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Error("expected error without config")
	}
}

func TestRun_WithLedgerSkipsUnchanged(t *testing.T) {
	cfg, _ := testConfig(t, map[string]string{"a.md": "x\n", "b.md": "y\n"})
	cfg.State.Path = filepath.Join(t.TempDir(), "state.db")

	if err := Run(context.Background(), WithConfig(cfg), WithOutput(&bytes.Buffer{})); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	var out bytes.Buffer
	if err := Run(context.Background(), WithConfig(cfg), WithOutput(&out), WithJSON(true)); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	var rep models.Report
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", rep.Skipped)
	}
}

func TestRun_InterruptedPrintsPartialSummary(t *testing.T) {
	cfg, root := testConfig(t, map[string]string{"a.md": "robotics\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	if err := Run(ctx, WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "(cancelled)") {
		t.Errorf("summary = %q, want a cancelled run", out.String())
	}
	if got := testutil.ReadFile(t, root, "a.md"); got != "robotics\n" {
		t.Errorf("a.md = %q, want untouched", got)
	}
}
