// Package snap finds the domain values nearest to a requested time.
package snap

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/g960059/maptime/internal/domain"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/state"
)

// Request is everything a snap needs, captured from state on the loop
// goroutine so the lookup itself never reads state.
type Request struct {
	LayerID string
	// Query is set for layers with a remote domain.
	Query  *domain.Query
	Static []string
	Snap   model.SnapType
	// FromEnd compares interval ends when paginating.
	FromEnd bool
	// Range restricts candidates; zero means unbounded.
	Range model.TimeRange
}

// NewRequest resolves layerOrGroup against the current state. It
// returns false when no time-enabled layer matches.
func NewRequest(s *state.Store, layerOrGroup string) (Request, bool) {
	layerID, ok := state.ResolveLayer(s.Layers, s.Dimension, layerOrGroup)
	if !ok {
		return Request{}, false
	}
	req := Request{
		LayerID: layerID,
		Snap:    s.Timeline.Settings.SnapType,
		FromEnd: state.FromEnd(s.Timeline.Settings),
	}
	if state.Animating(s.Playback) {
		req.Range = s.Playback.PlaybackRange
	}
	if q, ok := state.DomainQuery(s, layerID, domain.Options{}); ok {
		req.Query = &q
		return req, true
	}
	if values, ok := state.StaticValues(s.Dimension, layerID); ok {
		req.Static = values
		return req, true
	}
	return Request{}, false
}

// neighbourLimit leaves room for the cursor itself (inclusive services)
// and for an interval whose reduced side lands past the cursor.
const neighbourLimit = 3

type Snapper struct {
	resolver domain.Resolver
	logger   *slog.Logger
}

func New(resolver domain.Resolver, logger *slog.Logger) *Snapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapper{resolver: resolver, logger: logger}
}

// Snap returns the domain value closest to target, or target itself
// when no value exists on either side.
func (s *Snapper) Snap(ctx context.Context, req Request, target time.Time) time.Time {
	if req.Query == nil {
		values := domain.InRange(domain.Instants(req.Static, req.Snap), req.Range)
		if v, ok := domain.Nearest(values, target, req.Snap); ok {
			return v
		}
		return target
	}
	before, after := s.around(ctx, req, target, 1)
	candidates := append(before, after...)
	if v, ok := domain.Nearest(domain.InRange(candidates, req.Range), target, req.Snap); ok {
		return v
	}
	return target
}

// Neighbours returns the closest values strictly before and after
// from. A zero time means there is none in that direction.
func (s *Snapper) Neighbours(ctx context.Context, req Request, from time.Time) (previous, next time.Time, intervals bool) {
	var before, after []time.Time
	if req.Query == nil {
		values := domain.InRange(domain.Instants(req.Static, req.Snap), req.Range)
		before, after = values, values
		intervals = domain.HasIntervals(req.Static)
	} else {
		var raw bool
		before, after, raw = s.aroundRaw(ctx, req, from, neighbourLimit)
		before = domain.InRange(before, req.Range)
		after = domain.InRange(after, req.Range)
		intervals = raw
	}
	if v, ok := domain.Neighbour(before, from, -1); ok {
		previous = v
	}
	if v, ok := domain.Neighbour(after, from, 1); ok {
		next = v
	}
	return previous, next, intervals
}

// Step returns the neighbour of from in direction (+1 or -1).
func (s *Snapper) Step(ctx context.Context, req Request, from time.Time, direction int) (time.Time, bool) {
	previous, next, _ := s.Neighbours(ctx, req, from)
	v := next
	if direction < 0 {
		v = previous
	}
	return v, !v.IsZero()
}

func (s *Snapper) around(ctx context.Context, req Request, target time.Time, limit int) (before, after []time.Time) {
	before, after, _ = s.aroundRaw(ctx, req, target, limit)
	return before, after
}

// aroundRaw runs the descending and ascending queries in parallel. A
// failing side contributes no values.
func (s *Snapper) aroundRaw(ctx context.Context, req Request, target time.Time, limit int) (before, after []time.Time, intervals bool) {
	var rawBefore, rawAfter []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rawBefore = s.fetch(gctx, req, target, domain.SortDesc, limit)
		return nil
	})
	g.Go(func() error {
		rawAfter = s.fetch(gctx, req, target, domain.SortAsc, limit)
		return nil
	})
	_ = g.Wait()
	intervals = domain.HasIntervals(rawBefore) || domain.HasIntervals(rawAfter)
	return domain.Instants(rawBefore, req.Snap), domain.Instants(rawAfter, req.Snap), intervals
}

func (s *Snapper) fetch(ctx context.Context, req Request, target time.Time, sort domain.Sort, limit int) []string {
	q := *req.Query
	q.Options = domain.Options{
		Limit:     limit,
		Sort:      sort,
		FromValue: domain.FormatTime(target),
		FromEnd:   req.FromEnd,
	}
	if !req.Range.IsZero() {
		q.Options.Time = domain.FormatInterval(req.Range)
	}
	res, err := s.resolver.FetchDomainValues(ctx, q)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("snap query failed", "layer", req.LayerID, "sort", sort, "err", err)
		}
		return nil
	}
	return res.Values()
}
