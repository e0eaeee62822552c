package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/g960059/maptime/internal/config"
	"github.com/g960059/maptime/internal/testutil"
)

type cliFixture struct {
	dbPath  string
	mapPath string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	_, src := testutil.NewDomainService(t, testutil.DomainLayer{
		Name:   "gs:daily",
		Series: testutil.DailySeries("2016-09-01T00:00:00Z", "2016-10-31T00:00:00Z"),
	})
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "map.yaml")
	doc := `id: map-1
selected_layer: daily
playback:
  frame_duration: 20ms
layers:
  - id: daily
    name: gs:daily
    domain: 2016-09-01T00:00:00Z--2016-10-31T00:00:00Z
    url: ` + src.URL + `
    version: ` + src.Version + `
  - id: basemap
    name: osm
`
	if err := os.WriteFile(mapPath, []byte(doc), 0o600); err != nil {
		t.Fatalf("write map file: %v", err)
	}
	return &cliFixture{dbPath: filepath.Join(dir, "maps.db"), mapPath: mapPath}
}

func (f *cliFixture) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	full := append([]string{"--db", f.dbPath, "--map", "map-1"}, args...)
	code := NewRunner(out, errOut).Run(context.Background(), full)
	return code, out.String(), errOut.String()
}

func (f *cliFixture) mustImport(t *testing.T) {
	t.Helper()
	code, out, errOut := f.run(t, "maps", "import", f.mapPath)
	if code != 0 {
		t.Fatalf("expected import exit 0, got %d stderr=%s", code, errOut)
	}
	if strings.TrimSpace(out) != "imported map-1 (2 layers)" {
		t.Fatalf("unexpected import output: %q", out)
	}
}

func TestRunWithoutCommandPrintsUsage(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	if code := NewRunner(out, errOut).Run(context.Background(), nil); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "usage: maptime") {
		t.Fatalf("expected usage, got %q", errOut.String())
	}
	errOut.Reset()
	if code := NewRunner(out, errOut).Run(context.Background(), []string{"rewind"}); code != 2 {
		t.Fatalf("expected exit 2 for unknown command, got %d", code)
	}
	if !strings.Contains(errOut.String(), "unknown command: rewind") {
		t.Fatalf("expected unknown command error, got %q", errOut.String())
	}
}

func TestRunRejectsInvalidLogLevel(t *testing.T) {
	errOut := &bytes.Buffer{}
	code := NewRunner(&bytes.Buffer{}, errOut).Run(context.Background(), []string{"--log-level", "loud", "status"})
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "invalid --log-level") {
		t.Fatalf("expected log level error, got %q", errOut.String())
	}
}

func TestMapsImportListDelete(t *testing.T) {
	f := newCLIFixture(t)
	f.mustImport(t)

	code, out, errOut := f.run(t, "maps", "list")
	if code != 0 || strings.TrimSpace(out) != "map-1" {
		t.Fatalf("expected map-1 listed, got code=%d out=%q stderr=%s", code, out, errOut)
	}
	if code, _, errOut := f.run(t, "maps", "delete", "map-1"); code != 0 {
		t.Fatalf("expected delete exit 0, got %d stderr=%s", code, errOut)
	}
	if _, out, _ := f.run(t, "maps", "list"); out != "" {
		t.Fatalf("expected no maps after delete, got %q", out)
	}
	code, _, errOut = f.run(t, "maps", "delete", "map-1")
	if code != 1 || !strings.Contains(errOut, "map map-1 not found") {
		t.Fatalf("expected not found on second delete, got code=%d stderr=%q", code, errOut)
	}
}

func TestMapsImportRejectsDomainWithoutService(t *testing.T) {
	f := newCLIFixture(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	doc := "id: bad\nlayers:\n  - name: gs:daily\n    domain: 2016-09-01T00:00:00Z--2016-09-02T00:00:00Z\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write map file: %v", err)
	}
	code, _, errOut := f.run(t, "maps", "import", path)
	if code != 1 || !strings.Contains(errOut, "needs a service url") {
		t.Fatalf("expected service url error, got code=%d stderr=%q", code, errOut)
	}
}

func TestMapFileStaticLayer(t *testing.T) {
	cfg := config.DefaultConfig()
	mf := mapFile{
		ID:       "static",
		Timeline: cfg.Timeline,
		Playback: cfg.Playback,
		Layers: []mapLayer{{
			Name:   "gs:static",
			Hidden: true,
			Values: []string{"2016-09-01T00:00:00Z", "2016-09-02T00:00:00Z"},
		}},
		PlaybackRange: "2016-09-01T00:00:00Z/2016-09-02T00:00:00Z",
	}
	got, err := mf.config(cfg.Service)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if len(got.Layers) != 1 || got.Layers[0].ID != "gs:static" || got.Layers[0].Visible {
		t.Fatalf("expected one hidden layer keyed by name, got %+v", got.Layers)
	}
	dims := got.Dimensions["gs:static"]
	if len(dims) != 1 || dims[0].Domain != "2016-09-01T00:00:00Z,2016-09-02T00:00:00Z" {
		t.Fatalf("expected static domain from values, got %+v", dims)
	}
	if dims[0].Source.SourceType() != "static" {
		t.Fatalf("expected static source, got %s", dims[0].Source.SourceType())
	}
	if got.PlaybackRange.IsZero() {
		t.Fatalf("expected playback range to be parsed")
	}
}

func TestStatusShowsLoadedMap(t *testing.T) {
	f := newCLIFixture(t)
	f.mustImport(t)
	code, out, errOut := f.run(t, "status")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut)
	}
	for _, want := range []string{
		"status   STOP",
		"guide    daily",
		"time     2016-09-01T00:00:00.000Z",
		"layers   1 time-enabled of 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in status, got:\n%s", want, out)
		}
	}
}

func TestStatusUnknownMapFails(t *testing.T) {
	f := newCLIFixture(t)
	code, _, errOut := f.run(t, "status")
	if code != 1 || !strings.Contains(errOut, "load map map-1") {
		t.Fatalf("expected load error, got code=%d stderr=%q", code, errOut)
	}
}

func TestSnapPrintsNearestValue(t *testing.T) {
	f := newCLIFixture(t)
	f.mustImport(t)
	code, out, errOut := f.run(t, "snap", "2016-09-05T06:00:00Z")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut)
	}
	if strings.TrimSpace(out) != "2016-09-05T00:00:00.000Z" {
		t.Fatalf("expected snap to 9/5, got %q", out)
	}
	if code, _, _ := f.run(t, "snap", "yesterday"); code != 2 {
		t.Fatalf("expected exit 2 for a bad time, got %d", code)
	}
}

func TestStepWalksNeighbours(t *testing.T) {
	f := newCLIFixture(t)
	f.mustImport(t)
	code, out, errOut := f.run(t, "step", "--from", "2016-09-05T00:00:00Z", "-n", "2", "next")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut)
	}
	want := "2016-09-06T00:00:00.000Z\n2016-09-07T00:00:00.000Z\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
	code, out, _ = f.run(t, "step", "--from", "2016-09-05T00:00:00Z", "prev")
	if code != 0 || out != "2016-09-04T00:00:00.000Z\n" {
		t.Fatalf("expected a step back to 9/4, got code=%d out=%q", code, out)
	}
	if code, _, _ := f.run(t, "step", "sideways"); code != 2 {
		t.Fatalf("expected exit 2 for an unknown direction, got %d", code)
	}
}

func TestPlayRunsToRangeEnd(t *testing.T) {
	f := newCLIFixture(t)
	f.mustImport(t)
	code, out, errOut := f.run(t, "play", "--range", "2016-09-05T00:00:00Z/2016-09-08T00:00:00Z")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut)
	}
	want := strings.Join([]string{
		"frame 0 2016-09-05T00:00:00.000Z",
		"frame 1 2016-09-06T00:00:00.000Z",
		"frame 2 2016-09-07T00:00:00.000Z",
		"frame 3 2016-09-08T00:00:00.000Z",
	}, "\n") + "\n"
	if out != want {
		t.Fatalf("expected frames:\n%s\ngot:\n%s", want, out)
	}
}

func TestPlayStopsAfterFrameLimit(t *testing.T) {
	f := newCLIFixture(t)
	f.mustImport(t)
	code, out, errOut := f.run(t, "play", "--from", "2016-10-01T00:00:00Z", "--frames", "2")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut)
	}
	want := "frame 0 2016-10-01T00:00:00.000Z\nframe 1 2016-10-02T00:00:00.000Z\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
	if code, _, _ := f.run(t, "play", "--range", "2016-09-08T00:00:00Z/2016-09-05T00:00:00Z"); code != 2 {
		t.Fatalf("expected exit 2 for an inverted range, got %d", code)
	}
}
