package timeline

import (
	"testing"
	"time"

	"github.com/g960059/maptime/internal/clock"
	"github.com/g960059/maptime/internal/dispatch"
	"github.com/g960059/maptime/internal/domain"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/state"
	"github.com/g960059/maptime/internal/testutil"
)

const debounce = 400 * time.Millisecond

type dataFixture struct {
	loop  *dispatch.Loop
	store *state.Store
	fake  *clock.FakeClock
	rec   *dispatch.Recorder
	src   model.MultidimSource
}

func newDataFixture(t *testing.T) *dataFixture {
	t.Helper()
	srv, src := testutil.NewDomainService(t,
		testutil.DomainLayer{Name: "daily", Series: testutil.DailySeries("2016-09-01T00:00:00Z", "2016-10-31T00:00:00Z")},
		testutil.DomainLayer{Name: "sparse", Values: []string{"2016-09-02T00:00:00Z", "2016-09-05T00:00:00Z", "2016-11-01T00:00:00Z"}},
	)
	store := state.New(model.PlaybackSettings{}, model.TimelineSettings{})
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	loop := dispatch.New(store.Reduce, dispatch.WithClock(fake))
	loop.Register(NewRangeData(loop, store, domain.NewWithClient(srv.Client()), RangeDataOptions{Debounce: debounce, Workers: 2, Buckets: 50}))
	f := &dataFixture{loop: loop, store: store, fake: fake, rec: dispatch.NewRecorder(loop), src: src}
	testutil.RunLoop(t, loop)
	return f
}

func (f *dataFixture) remote(id string) model.AddLayer {
	return model.AddLayer{
		Layer:      model.Layer{ID: id, Name: id, Visible: true},
		Dimensions: []model.Dimension{{Name: model.TimeDimension, Source: f.src}},
	}
}

func (f *dataFixture) data(t *testing.T) (map[string]model.RangeData, map[string]bool) {
	t.Helper()
	data := map[string]model.RangeData{}
	loading := map[string]bool{}
	testutil.Read(t, f.loop, func() {
		for k, v := range f.store.Timeline.RangeData {
			data[k] = v
		}
		for k, v := range f.store.Timeline.Loading {
			loading[k] = v
		}
	})
	return data, loading
}

func TestRangeDataValuesAndHistogram(t *testing.T) {
	f := newDataFixture(t)
	testutil.Dispatch(t, f.loop,
		f.remote("daily"),
		f.remote("sparse"),
		model.SetRange{Range: span(day(9, 1), day(9, 30))},
	)
	if got := f.rec.Count(model.ActionSetRangeData); got != 0 {
		t.Fatalf("expected refresh to wait for the debounce, got %d", got)
	}
	testutil.Advance(t, f.fake, f.loop, debounce, 1)

	data, loading := f.data(t)
	if len(loading) != 0 {
		t.Fatalf("expected loading flags cleared, got %v", loading)
	}
	daily := data["daily"]
	if daily.Histogram == nil || daily.Domain != nil {
		t.Fatalf("expected a histogram above the expand limit, got %+v", daily)
	}
	total := 0
	for _, n := range daily.Histogram.Values {
		total += n
	}
	if total != 30 {
		t.Fatalf("expected 30 values counted, got %d", total)
	}
	sparse := data["sparse"]
	if sparse.Histogram != nil || len(sparse.Domain) != 2 || !sparse.Domain[1].Equal(day(9, 5)) {
		t.Fatalf("expected two values in range, got %+v", sparse)
	}
	if got := f.rec.Count(model.ActionSetRangeData); got != 2 {
		t.Fatalf("expected one refresh per layer, got %d", got)
	}
}

func TestRangeDataDebouncesDrags(t *testing.T) {
	f := newDataFixture(t)
	testutil.Dispatch(t, f.loop, f.remote("sparse"))
	for i := 1; i <= 5; i++ {
		testutil.Dispatch(t, f.loop, model.SetRange{Range: span(day(9, i), day(9, 20+i))})
		testutil.Advance(t, f.fake, f.loop, 100*time.Millisecond, 1)
	}
	testutil.Advance(t, f.fake, f.loop, debounce, 1)
	if got := f.rec.Count(model.ActionSetRangeData); got != 1 {
		t.Fatalf("expected a single refresh, got %d", got)
	}
	data, _ := f.data(t)
	if got := data["sparse"]; !sameRange(got.Range, span(day(9, 5), day(9, 25))) || len(got.Domain) != 1 {
		t.Fatalf("expected data for the last range, got %+v", got)
	}
}

func TestRangeDataFailureIsPerLayer(t *testing.T) {
	f := newDataFixture(t)
	testutil.Dispatch(t, f.loop,
		f.remote("sparse"),
		f.remote("ghost"),
		model.AddLayer{
			Layer:      model.Layer{ID: "static", Visible: true},
			Dimensions: []model.Dimension{{Name: model.TimeDimension, Source: model.StaticSource{Values: []string{"2016-09-10T00:00:00Z", "2017-01-01T00:00:00Z"}}}},
		},
		model.SetRange{Range: span(day(9, 1), day(9, 30))},
	)
	testutil.Advance(t, f.fake, f.loop, debounce, 1)

	data, loading := f.data(t)
	if len(loading) != 0 {
		t.Fatalf("expected loading flags cleared, got %v", loading)
	}
	if data["ghost"].Err == "" {
		t.Fatalf("expected error recorded for ghost, got %+v", data["ghost"])
	}
	if len(data["sparse"].Domain) != 2 || data["sparse"].Err != "" {
		t.Fatalf("expected sparse refreshed despite the failure, got %+v", data["sparse"])
	}
	if got := data["static"]; len(got.Domain) != 1 || !got.Domain[0].Equal(day(9, 10)) {
		t.Fatalf("expected static values filtered in memory, got %+v", got)
	}
	var notes []model.Notification
	for _, a := range f.rec.Actions() {
		if n, ok := a.(model.ShowNotification); ok {
			notes = append(notes, n.Notification)
		}
	}
	if len(notes) != 1 || notes[0].Message != model.MsgRangeDataFailed {
		t.Fatalf("expected one range data notification, got %+v", notes)
	}
}

func TestRangeDataSkipsHiddenLayers(t *testing.T) {
	f := newDataFixture(t)
	testutil.Dispatch(t, f.loop,
		f.remote("sparse"),
		model.ChangeLayerProperties{LayerID: "sparse", Properties: model.LayerProperties{Visible: model.BoolPtr(false)}},
		model.SetRange{Range: span(day(9, 1), day(9, 30))},
	)
	testutil.Advance(t, f.fake, f.loop, debounce, 1)
	if got := f.rec.Count(model.ActionSetRangeData); got != 0 {
		t.Fatalf("expected hidden layers skipped, got %d", got)
	}
}
