package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/g960059/maptime/internal/config"
	"github.com/g960059/maptime/internal/db"
	"github.com/g960059/maptime/internal/domain"
	"github.com/g960059/maptime/internal/engine"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/state"
)

type Runner struct {
	out    io.Writer
	errOut io.Writer
}

func NewRunner(out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	// The engine logs from its own goroutine.
	return &Runner{out: out, errOut: &lockedWriter{w: errOut}}
}

type globals struct {
	configPath string
	dbPath     string
	mapID      string
	url        string
	logLevel   string
}

func (r *Runner) Run(ctx context.Context, args []string) int {
	g, rest, err := parseGlobalArgs(args)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if len(rest) == 0 {
		r.printUsage()
		return 2
	}
	switch rest[0] {
	case "maps":
		return r.runMaps(ctx, g, rest[1:])
	case "status":
		return r.runStatus(ctx, g, rest[1:])
	case "snap":
		return r.runSnap(ctx, g, rest[1:])
	case "step":
		return r.runStep(ctx, g, rest[1:])
	case "play":
		return r.runPlay(ctx, g, rest[1:])
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown command: %s\n", rest[0])
		r.printUsage()
		return 2
	}
}

func parseGlobalArgs(args []string) (globals, []string, error) {
	var g globals
	fs := pflag.NewFlagSet("maptime", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	fs.StringVar(&g.configPath, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	fs.StringVar(&g.dbPath, "db", "", "SQLite path of the map store")
	fs.StringVar(&g.mapID, "map", "", "map id")
	fs.StringVar(&g.url, "url", "", "domain service endpoint")
	fs.StringVar(&g.logLevel, "log-level", "warn", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return globals{}, nil, err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return globals{}, nil, fmt.Errorf("invalid --log-level %q", g.logLevel)
	}
	return g, fs.Args(), nil
}

func (r *Runner) config(g globals) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if g.dbPath != "" {
		cfg.DBPath = g.dbPath
	}
	if g.mapID != "" {
		cfg.MapID = g.mapID
	}
	if g.url != "" {
		cfg.Service.URL = g.url
	}
	return cfg, nil
}

func (r *Runner) logger(g globals) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(g.logLevel))
	return slog.New(slog.NewTextHandler(r.errOut, &slog.HandlerOptions{Level: level}))
}

func openStore(ctx context.Context, path string) (*db.Store, error) {
	store, err := db.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		store.Close() //nolint:errcheck
		return nil, err
	}
	return store, nil
}

// session is a running engine with the configured map loaded.
type session struct {
	engine *engine.Engine
	store  *db.Store
	stop   context.CancelFunc
	done   chan error
}

func (r *Runner) open(ctx context.Context, g globals) (*session, error) {
	cfg, err := r.config(g)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	e := engine.New(cfg, engine.WithLogger(r.logger(g)), engine.WithMapStore(store))
	runCtx, stop := context.WithCancel(ctx)
	s := &session{engine: e, store: store, stop: stop, done: make(chan error, 1)}
	go func() { s.done <- e.Run(runCtx) }()

	if err := e.LoadMap(ctx, cfg.MapID); err != nil {
		s.close()
		return nil, err
	}
	if err := s.settle(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) settle(ctx context.Context) error {
	return s.engine.WaitIdle(ctx)
}

// do dispatches actions one by one, waiting for each to settle.
func (s *session) do(ctx context.Context, actions ...model.Action) error {
	for _, a := range actions {
		if err := s.engine.Dispatch(a); err != nil {
			return err
		}
		if err := s.settle(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) snapshot(ctx context.Context) (state.Store, error) {
	return s.engine.Snapshot(ctx)
}

func (s *session) close() {
	s.stop()
	<-s.done
	s.store.Close() //nolint:errcheck
}

func (r *Runner) runMaps(ctx context.Context, g globals, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: maptime maps <list|import|delete>")
		return 2
	}
	cfg, err := r.config(g)
	if err != nil {
		return r.handleErr(err)
	}
	switch args[0] {
	case "list":
		store, err := openStore(ctx, cfg.DBPath)
		if err != nil {
			return r.handleErr(err)
		}
		defer store.Close() //nolint:errcheck
		ids, err := store.ListMaps(ctx)
		if err != nil {
			return r.handleErr(err)
		}
		for _, id := range ids {
			_, _ = fmt.Fprintln(r.out, id)
		}
		return 0
	case "import":
		if len(args) != 2 {
			_, _ = fmt.Fprintln(r.errOut, "usage: maptime maps import <file.yaml>")
			return 2
		}
		mapCfg, err := readMapFile(args[1], cfg)
		if err != nil {
			return r.handleErr(err)
		}
		store, err := openStore(ctx, cfg.DBPath)
		if err != nil {
			return r.handleErr(err)
		}
		defer store.Close() //nolint:errcheck
		if err := store.SaveMapConfig(ctx, mapCfg); err != nil {
			return r.handleErr(err)
		}
		_, _ = fmt.Fprintf(r.out, "imported %s (%d layers)\n", mapCfg.MapID, len(mapCfg.Layers))
		return 0
	case "delete":
		if len(args) != 2 {
			_, _ = fmt.Fprintln(r.errOut, "usage: maptime maps delete <map-id>")
			return 2
		}
		store, err := openStore(ctx, cfg.DBPath)
		if err != nil {
			return r.handleErr(err)
		}
		defer store.Close() //nolint:errcheck
		if err := store.DeleteMap(ctx, args[1]); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return r.handleErr(fmt.Errorf("map %s not found", args[1]))
			}
			return r.handleErr(err)
		}
		_, _ = fmt.Fprintf(r.out, "deleted %s\n", args[1])
		return 0
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown maps command: %s\n", args[0])
		return 2
	}
}

func (r *Runner) runStatus(ctx context.Context, g globals, args []string) int {
	if len(args) != 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: maptime status")
		return 2
	}
	s, err := r.open(ctx, g)
	if err != nil {
		return r.handleErr(err)
	}
	defer s.close()
	st, err := s.snapshot(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	guide := st.Timeline.SelectedLayer
	if guide == "" {
		guide = "-"
	}
	rows := [][2]string{
		{"status", string(st.Playback.Status)},
		{"guide", guide},
		{"time", formatTime(st.Dimension.CurrentTime)},
		{"offset", formatTime(st.Dimension.OffsetTime)},
		{"range", formatRange(st.Timeline.Range)},
		{"playback", formatRange(st.Playback.PlaybackRange)},
		{"step", fmt.Sprintf("%d %s", st.Playback.Settings.TimeStep, st.Playback.Settings.StepUnit)},
		{"layers", fmt.Sprintf("%d time-enabled of %d", len(state.TimeLayers(st.Layers, st.Dimension)), len(st.Layers.Layers))},
	}
	for _, row := range rows {
		_, _ = fmt.Fprintf(r.out, "%-9s%s\n", row[0], row[1])
	}
	return 0
}

func (r *Runner) runSnap(ctx context.Context, g globals, args []string) int {
	fs := pflag.NewFlagSet("snap", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	group := fs.String("group", "", "snap to this layer or group instead of the guide layer")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(r.errOut, "usage: maptime snap [--group id] <time>")
		return 2
	}
	target, err := domain.ParseTime(fs.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	s, err := r.open(ctx, g)
	if err != nil {
		return r.handleErr(err)
	}
	defer s.close()
	if err := s.do(ctx, model.SelectTime{Time: target, GroupID: *group}); err != nil {
		return r.handleErr(err)
	}
	st, err := s.snapshot(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, formatTime(st.Dimension.CurrentTime))
	return 0
}

func (r *Runner) runStep(ctx context.Context, g globals, args []string) int {
	fs := pflag.NewFlagSet("step", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	from := fs.String("from", "", "start from this time instead of the map's initial time")
	count := fs.IntP("count", "n", 1, "number of steps")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if fs.NArg() != 1 || *count <= 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: maptime step [--from time] [-n count] <next|prev>")
		return 2
	}
	var direction int
	switch fs.Arg(0) {
	case "next":
		direction = 1
	case "prev":
		direction = -1
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown direction: %s\n", fs.Arg(0))
		return 2
	}
	var setup []model.Action
	if *from != "" {
		t, err := domain.ParseTime(*from)
		if err != nil {
			_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
			return 2
		}
		setup = append(setup, model.SetCurrentTime{Time: t})
	}

	s, err := r.open(ctx, g)
	if err != nil {
		return r.handleErr(err)
	}
	defer s.close()
	if err := s.do(ctx, setup...); err != nil {
		return r.handleErr(err)
	}
	st, err := s.snapshot(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	current := st.Dimension.CurrentTime
	for i := 0; i < *count; i++ {
		if err := s.do(ctx, model.StepMove{Direction: direction}); err != nil {
			return r.handleErr(err)
		}
		if st, err = s.snapshot(ctx); err != nil {
			return r.handleErr(err)
		}
		if st.Dimension.CurrentTime.Equal(current) {
			_, _ = fmt.Fprintln(r.errOut, "no further values")
			break
		}
		current = st.Dimension.CurrentTime
		_, _ = fmt.Fprintln(r.out, formatTime(current))
	}
	return 0
}

func (r *Runner) runPlay(ctx context.Context, g globals, args []string) int {
	fs := pflag.NewFlagSet("play", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	from := fs.String("from", "", "start from this time")
	rangeRaw := fs.String("range", "", "bound the animation to start/end")
	maxFrames := fs.Int("frames", 0, "stop after this many frames; 0 plays to the end")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if fs.NArg() != 0 || *maxFrames < 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: maptime play [--from time] [--range start/end] [--frames n]")
		return 2
	}
	var setup []model.Action
	if *from != "" {
		t, err := domain.ParseTime(*from)
		if err != nil {
			_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
			return 2
		}
		setup = append(setup, model.SetCurrentTime{Time: t})
	}
	if *rangeRaw != "" {
		rg, err := parseRange(*rangeRaw)
		if err != nil {
			_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
			return 2
		}
		setup = append(setup, model.SetPlaybackRange{Range: rg})
	}

	s, err := r.open(ctx, g)
	if err != nil {
		return r.handleErr(err)
	}
	defer s.close()
	if err := s.do(ctx, setup...); err != nil {
		return r.handleErr(err)
	}

	events, unsubscribe := s.engine.Subscribe(0)
	defer unsubscribe()
	if err := s.engine.Dispatch(model.Play{}); err != nil {
		return r.handleErr(err)
	}
	shown, frame := 0, -1
	for {
		select {
		case <-ctx.Done():
			return 130
		case a, ok := <-events:
			if !ok {
				return r.handleErr(errors.New("engine stopped"))
			}
			switch a := a.(type) {
			case model.SetCurrentFrame:
				frame = a.Frame
			case model.MoveTime:
				if frame < 0 {
					continue
				}
				_, _ = fmt.Fprintf(r.out, "frame %d %s\n", frame, formatTime(a.Time))
				frame = -1
				shown++
				if *maxFrames > 0 && shown >= *maxFrames {
					if err := s.do(ctx, model.Stop{}); err != nil {
						return r.handleErr(err)
					}
					return 0
				}
			case model.ShowNotification:
				r.printNotification(a.Notification)
			case model.Stop:
				if err := s.settle(ctx); err != nil {
					return r.handleErr(err)
				}
				if shown == 0 {
					_, _ = fmt.Fprintln(r.errOut, "no frames to play")
					return 1
				}
				return 0
			}
		}
	}
}

func (r *Runner) printNotification(n model.Notification) {
	_, _ = fmt.Fprintf(r.errOut, "%s: %s: %s\n", n.Level, n.Title, n.Message)
}

func (r *Runner) handleErr(err error) int {
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	return 1
}

func (r *Runner) printUsage() {
	_, _ = fmt.Fprintln(r.errOut, `usage: maptime [--config file] [--db path] [--map id] [--url endpoint] [--log-level level] <command>

commands:
  maps list|import <file>|delete <id>
  status
  snap [--group id] <time>
  step [--from time] [-n count] <next|prev>
  play [--from time] [--range start/end] [--frames n]`)
}

// parseRange reads "start/end".
func parseRange(raw string) (model.TimeRange, error) {
	start, end, ok := strings.Cut(raw, "/")
	if !ok {
		return model.TimeRange{}, fmt.Errorf("range %q is not start/end", raw)
	}
	s, err := domain.ParseTime(start)
	if err != nil {
		return model.TimeRange{}, err
	}
	e, err := domain.ParseTime(end)
	if err != nil {
		return model.TimeRange{}, err
	}
	if e.Before(s) {
		return model.TimeRange{}, fmt.Errorf("range %q ends before it starts", raw)
	}
	return model.TimeRange{Start: s, End: e}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return domain.FormatTime(t)
}

func formatRange(r model.TimeRange) string {
	if r.IsZero() {
		return "-"
	}
	return domain.FormatInterval(r)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
