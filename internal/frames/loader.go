// Package frames loads bounded batches of animation frames.
package frames

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/g960059/maptime/internal/domain"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/state"
)

const (
	// BufferSize is the number of frames a single load returns at most.
	BufferSize = 20
	// PreloadBefore is how many frames before the end of a page the
	// next page is requested.
	PreloadBefore = 10
)

// ShouldPrefetch reports whether reaching frame index triggers a prefetch.
func ShouldPrefetch(index int) bool {
	return index >= 0 && index%BufferSize == BufferSize-PreloadBefore
}

type Mode int

const (
	ModeNone Mode = iota
	ModeFixedStep
	ModeStatic
	ModeRemote
)

func (m Mode) String() string {
	switch m {
	case ModeFixedStep:
		return "fixed-step"
	case ModeStatic:
		return "static"
	case ModeRemote:
		return "remote"
	default:
		return "none"
	}
}

// Request is a frame load captured from state on the loop goroutine.
type Request struct {
	Mode     Mode
	Step     int
	StepUnit string
	Query    domain.Query
	Static   []string
	Snap     model.SnapType
	FromEnd  bool
	Range    model.TimeRange
	// From is the pagination cursor. It is inclusive for an initial
	// load and exclusive when Append is set. Zero means no cursor.
	From   time.Time
	Append bool
}

// NewRequest picks the load policy for the current state. For an
// initial load the cursor is the current time (or now), except when a
// playback range is set: the range filter then bounds the load alone.
// For an append the cursor is the last buffered frame.
func NewRequest(s *state.Store, now time.Time, appendPage bool) Request {
	req := Request{
		Snap:    s.Timeline.Settings.SnapType,
		FromEnd: state.FromEnd(s.Timeline.Settings),
		Range:   s.Playback.PlaybackRange,
		Append:  appendPage,
	}
	switch {
	case appendPage:
		req.From, _ = state.LastFrame(s.Playback)
	case req.Range.IsZero():
		req.From = s.Dimension.CurrentTime
		if req.From.IsZero() {
			req.From = now
		}
	}

	settings := s.Playback.Settings
	guide := s.Timeline.SelectedLayer
	switch {
	case settings.HasFixedStep() && guide == "":
		req.Mode = ModeFixedStep
		req.Step = settings.TimeStep
		req.StepUnit = settings.StepUnit
		if req.From.IsZero() {
			req.From = req.Range.Start
		}
	case guide == "":
		req.Mode = ModeNone
	default:
		if q, ok := state.DomainQuery(s, guide, domain.Options{}); ok {
			req.Mode = ModeRemote
			req.Query = q
		} else if values, ok := state.StaticValues(s.Dimension, guide); ok {
			req.Mode = ModeStatic
			req.Static = values
		}
	}
	return req
}

type Loader struct {
	resolver domain.Resolver
	logger   *slog.Logger
}

func NewLoader(resolver domain.Resolver, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{resolver: resolver, logger: logger}
}

// Load returns at most BufferSize frames in ascending order.
func (l *Loader) Load(ctx context.Context, req Request) ([]time.Time, error) {
	switch req.Mode {
	case ModeFixedStep:
		return generate(req)
	case ModeStatic:
		return page(domain.Instants(req.Static, req.Snap), req), nil
	case ModeRemote:
		return l.fetch(ctx, req)
	default:
		return nil, nil
	}
}

func generate(req Request) ([]time.Time, error) {
	if req.From.IsZero() {
		return nil, nil
	}
	cur := req.From
	if req.Append {
		next, err := model.AddStep(cur, req.Step, req.StepUnit)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	out := make([]time.Time, 0, BufferSize)
	for len(out) < BufferSize {
		if !req.Range.IsZero() && cur.After(req.Range.End) {
			break
		}
		out = append(out, cur)
		next, err := model.AddStep(cur, req.Step, req.StepUnit)
		if err != nil {
			return nil, err
		}
		if !next.After(cur) {
			return nil, fmt.Errorf("time step %d %s does not advance", req.Step, req.StepUnit)
		}
		cur = next
	}
	return out, nil
}

func (l *Loader) fetch(ctx context.Context, req Request) ([]time.Time, error) {
	q := req.Query
	q.Options = domain.Options{
		Limit:   BufferSize,
		Sort:    domain.SortAsc,
		FromEnd: req.FromEnd,
	}
	if !req.From.IsZero() {
		q.Options.FromValue = domain.FormatTime(req.From)
	}
	if !req.Range.IsZero() {
		q.Options.Time = domain.FormatInterval(req.Range)
	}
	res, err := l.resolver.FetchDomainValues(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load frames of %s: %w", q.Layer, err)
	}
	out := page(domain.Instants(res.Values(), req.Snap), req)
	l.logger.Debug("frames loaded", "layer", q.Layer, "append", req.Append, "count", len(out))
	return out, nil
}

// page filters sorted values to the range and the cursor and keeps the
// first BufferSize of them.
func page(values []time.Time, req Request) []time.Time {
	out := make([]time.Time, 0, min(len(values), BufferSize))
	for _, v := range domain.InRange(values, req.Range) {
		if !req.From.IsZero() {
			if req.Append && !v.After(req.From) {
				continue
			}
			if !req.Append && v.Before(req.From) {
				continue
			}
		}
		if n := len(out); n > 0 && !v.After(out[n-1]) {
			continue
		}
		out = append(out, v)
		if len(out) == BufferSize {
			break
		}
	}
	return out
}
