package timeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/g960059/maptime/internal/dispatch"
	"github.com/g960059/maptime/internal/domain"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/state"
)

type RangeDataOptions struct {
	Debounce time.Duration
	// Workers bounds concurrent per-layer fetches.
	Workers int
	// Buckets is the histogram resolution divisor of the range width.
	Buckets int
	// NotifyAfter is the auto dismiss delay of failure notifications.
	NotifyAfter time.Duration
}

// RangeData refreshes the per-layer values or histograms shown for the
// visible range. Refreshes are debounced and a newer one discards the
// results of an older one.
type RangeData struct {
	loop     *dispatch.Loop
	store    *state.Store
	resolver domain.Resolver
	opts     RangeDataOptions

	debounce dispatch.Debouncer
	job      dispatch.Latest
}

func NewRangeData(loop *dispatch.Loop, store *state.Store, resolver domain.Resolver, opts RangeDataOptions) *RangeData {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buckets <= 0 {
		opts.Buckets = 50
	}
	return &RangeData{
		loop:     loop,
		store:    store,
		resolver: resolver,
		opts:     opts,
		debounce: dispatch.Debouncer{Delay: opts.Debounce},
		job:      dispatch.Latest{Name: "range-data"},
	}
}

func (r *RangeData) Handle(a model.Action) {
	switch act := a.(type) {
	case model.SetRange, model.SelectLayer, model.AddLayer, model.RemoveLayer,
		model.UpdateDimensionData, model.UpdateTimelineSettings, model.MapLoaded:
		r.schedule()
	case model.ChangeLayerProperties:
		if act.Properties.Visible != nil {
			r.schedule()
		}
	case model.ViewportChanged:
		if r.store.Timeline.Settings.MapSync {
			r.schedule()
		}
	case model.ResetControls:
		r.debounce.Cancel()
		r.job.Cancel()
	}
}

func (r *RangeData) schedule() {
	r.debounce.Trigger(r.loop, r.refresh)
}

type layerFetch struct {
	layerID string
	query   *domain.Query
	static  []string
}

type layerResult struct {
	layerID string
	data    model.RangeData
	err     error
}

func (r *RangeData) refresh() {
	s := r.store
	window := s.Timeline.Range
	if window.IsZero() {
		return
	}
	var fetches []layerFetch
	for _, l := range state.EligibleLayers(s.Layers, s.Dimension, s.Timeline.Settings) {
		if q, ok := state.DomainQuery(s, l.ID, domain.Options{}); ok {
			fetches = append(fetches, layerFetch{layerID: l.ID, query: &q})
			continue
		}
		if values, ok := state.StaticValues(s.Dimension, l.ID); ok {
			fetches = append(fetches, layerFetch{layerID: l.ID, static: values})
		}
	}
	r.clearStale(fetches)
	if len(fetches) == 0 {
		r.job.Cancel()
		return
	}
	for _, f := range fetches {
		r.loop.Emit(model.SetLoading{Key: f.layerID, Loading: true})
	}
	settings := s.Timeline.Settings
	r.job.Start(r.loop, func(ctx context.Context) func() {
		results := r.fetchAll(ctx, fetches, window, settings)
		return func() { r.apply(results) }
	})
}

// clearStale drops loading flags of layers no longer refreshed.
func (r *RangeData) clearStale(fetches []layerFetch) {
	keep := map[string]bool{model.LoadingTimeline: true}
	for _, f := range fetches {
		keep[f.layerID] = true
	}
	for key := range r.store.Timeline.Loading {
		if !keep[key] {
			r.loop.Emit(model.SetLoading{Key: key, Loading: false})
		}
	}
}

func (r *RangeData) fetchAll(ctx context.Context, fetches []layerFetch, window model.TimeRange, settings model.TimelineSettings) []layerResult {
	results := make([]layerResult, len(fetches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, f := range fetches {
		i, f := i, f
		g.Go(func() error {
			data, err := r.fetchLayer(gctx, f, window, settings)
			results[i] = layerResult{layerID: f.layerID, data: data, err: err}
			// A failing layer must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *RangeData) fetchLayer(ctx context.Context, f layerFetch, window model.TimeRange, settings model.TimelineSettings) (model.RangeData, error) {
	out := model.RangeData{Range: window}
	if f.query == nil {
		out.Domain = domain.InRange(domain.Instants(f.static, settings.SnapType), window)
		return out, nil
	}
	q := *f.query
	q.Options = domain.Options{
		Limit:   settings.ExpandLimit + 1,
		Sort:    domain.SortAsc,
		FromEnd: state.FromEnd(settings),
		Time:    domain.FormatInterval(window),
	}
	res, err := r.resolver.FetchDomainValues(ctx, q)
	if err != nil {
		return out, err
	}
	values := res.Values()
	if len(values) <= settings.ExpandLimit {
		out.Domain = domain.Instants(values, settings.SnapType)
		return out, nil
	}
	q.Options = domain.Options{}
	hist, err := r.resolver.FetchHistogram(ctx, domain.HistogramQuery{
		Query:      q,
		Range:      window,
		Resolution: (window.Width() / time.Duration(r.opts.Buckets)).Truncate(time.Second),
	})
	if err != nil {
		return out, err
	}
	out.Histogram = &hist
	return out, nil
}

func (r *RangeData) apply(results []layerResult) {
	failed := 0
	for _, res := range results {
		if _, ok := state.FindLayer(r.store.Layers, res.layerID); !ok {
			continue
		}
		data := res.data
		if res.err != nil {
			if errors.Is(res.err, context.Canceled) {
				r.loop.Emit(model.SetLoading{Key: res.layerID, Loading: false})
				continue
			}
			failed++
			r.loop.Logger().Warn("range data refresh failed", "layer", res.layerID, "err", res.err)
			data = model.RangeData{Range: res.data.Range, Err: res.err.Error()}
		}
		r.loop.Emit(model.SetRangeData{LayerID: res.layerID, Data: data})
		r.loop.Emit(model.SetLoading{Key: res.layerID, Loading: false})
	}
	if failed > 0 {
		r.loop.Emit(model.ShowNotification{Notification: model.Notification{
			ID:          uuid.NewString(),
			Level:       model.NotificationWarning,
			Title:       "timeline",
			Message:     model.MsgRangeDataFailed,
			AutoDismiss: r.opts.NotifyAfter,
		}})
	}
}
