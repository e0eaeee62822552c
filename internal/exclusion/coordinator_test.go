package exclusion

import (
	"testing"

	"github.com/g960059/maptime/internal/dispatch"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/state"
	"github.com/g960059/maptime/internal/testutil"
)

func TestNextRules(t *testing.T) {
	cases := []struct {
		name  string
		cause Cause
		view  View
		want  Decision
	}{
		{
			name:  "widget expanded over visible timeline",
			cause: CauseWidgets,
			view:  View{HasTimeLayers: true, Expanded: []string{"w1"}},
			want:  Decision{CollapseTimeline: true},
		},
		{
			name:  "timeline shown over expanded widgets",
			cause: CauseTimeline,
			view:  View{HasTimeLayers: true, Expanded: []string{"w1", "w2"}},
			want:  Decision{CollapseWidgets: []string{"w1", "w2"}},
		},
		{
			name:  "empty tray re-expands timeline",
			cause: CauseWidgets,
			view:  View{TimelineCollapsed: true, HasTimeLayers: true},
			want:  Decision{ExpandTimeline: true},
		},
		{
			name:  "timeline without layers is left alone",
			cause: CauseWidgets,
			view:  View{TimelineCollapsed: true},
		},
		{
			name:  "user collapsed timeline stays collapsed",
			cause: CauseTimeline,
			view:  View{TimelineCollapsed: true, HasTimeLayers: true},
		},
		{
			name:  "expanded widgets next to hidden timeline",
			cause: CauseWidgets,
			view:  View{TimelineCollapsed: true, HasTimeLayers: true, Expanded: []string{"w1"}},
		},
	}
	for _, tc := range cases {
		got := Next(tc.cause, tc.view)
		if got.CollapseTimeline != tc.want.CollapseTimeline || got.ExpandTimeline != tc.want.ExpandTimeline || len(got.CollapseWidgets) != len(tc.want.CollapseWidgets) {
			t.Fatalf("%s: expected %+v, got %+v", tc.name, tc.want, got)
		}
		for i := range tc.want.CollapseWidgets {
			if got.CollapseWidgets[i] != tc.want.CollapseWidgets[i] {
				t.Fatalf("%s: expected %+v, got %+v", tc.name, tc.want, got)
			}
		}
	}
}

type fixture struct {
	loop  *dispatch.Loop
	store *state.Store
	rec   *dispatch.Recorder
}

func newFixture(t *testing.T, widgets ...model.Widget) *fixture {
	t.Helper()
	store := state.New(model.PlaybackSettings{}, model.TimelineSettings{})
	loop := dispatch.New(store.Reduce)
	loop.Register(NewCoordinator(loop, store, 0))
	f := &fixture{loop: loop, store: store, rec: dispatch.NewRecorder(loop)}
	testutil.RunLoop(t, loop)
	testutil.Dispatch(t, loop,
		model.ReplaceWidgets{Widgets: widgets},
		model.AddLayer{
			Layer:      model.Layer{ID: "a", Visible: true},
			Dimensions: []model.Dimension{{Name: model.TimeDimension, Domain: "2016-09-01T00:00:00Z--2016-09-30T00:00:00Z"}},
		},
	)
	f.rec.Reset()
	return f
}

func (f *fixture) notifications() []string {
	var out []string
	for _, a := range f.rec.Actions() {
		if n, ok := a.(model.ShowNotification); ok {
			out = append(out, n.Notification.Message)
		}
	}
	return out
}

func (f *fixture) collapsed(t *testing.T) bool {
	t.Helper()
	var collapsed bool
	testutil.Read(t, f.loop, func() { collapsed = f.store.Timeline.Settings.Collapsed })
	return collapsed
}

func TestToggleCollapseAllNotifiesOnce(t *testing.T) {
	f := newFixture(t, model.Widget{ID: "w1", Collapsed: true}, model.Widget{ID: "pinned", Pinned: true})

	testutil.Dispatch(t, f.loop, model.ToggleCollapseAll{})
	if !f.collapsed(t) {
		t.Fatalf("expected timeline collapsed when widgets expand")
	}
	testutil.Dispatch(t, f.loop, model.ToggleCollapseAll{})
	if f.collapsed(t) {
		t.Fatalf("expected timeline re-expanded with an empty tray")
	}
	if got := f.notifications(); len(got) != 1 || got[0] != model.MsgTimelineCollapsed {
		t.Fatalf("expected exactly one notification, got %v", got)
	}

	testutil.Dispatch(t, f.loop, model.ToggleCollapseAll{})
	if !f.collapsed(t) {
		t.Fatalf("expected timeline collapsed again")
	}
	if got := f.notifications(); len(got) != 1 {
		t.Fatalf("expected repeated collapse to stay silent, got %v", got)
	}
}

func TestUserExpandedTimelineCollapsesWidgets(t *testing.T) {
	f := newFixture(t, model.Widget{ID: "w1", Collapsed: true}, model.Widget{ID: "w2", Collapsed: true})
	testutil.Dispatch(t, f.loop, model.ExpandWidget{ID: "w1"})
	if !f.collapsed(t) {
		t.Fatalf("expected timeline collapsed")
	}

	testutil.Dispatch(t, f.loop, model.ExpandTimeline{})
	if f.collapsed(t) {
		t.Fatalf("expected timeline expanded by the user")
	}
	var widgets []model.Widget
	testutil.Read(t, f.loop, func() { widgets = append(widgets, f.store.Widgets.Widgets...) })
	for _, w := range widgets {
		if !w.Collapsed {
			t.Fatalf("expected every widget collapsed, got %+v", widgets)
		}
	}
	got := f.notifications()
	if len(got) != 2 || got[0] != model.MsgTimelineCollapsed || got[1] != model.MsgWidgetsCollapsed {
		t.Fatalf("expected one notification per side, got %v", got)
	}

	testutil.Dispatch(t, f.loop, model.ExpandWidget{ID: "w2"})
	if got := f.notifications(); len(got) != 3 {
		t.Fatalf("expected a new notification after the user expanded the timeline, got %v", got)
	}
}

func TestPinnedWidgetsDoNotCollapseTimeline(t *testing.T) {
	f := newFixture(t, model.Widget{ID: "pinned", Pinned: true})
	testutil.Dispatch(t, f.loop, model.ExpandWidget{ID: "pinned"})
	if f.collapsed(t) {
		t.Fatalf("expected pinned widgets to be ignored")
	}
	if got := f.rec.Count(model.ActionShowNotification); got != 0 {
		t.Fatalf("expected no notification, got %d", got)
	}
}

func TestTimelineLayerArrivalCollapsesWidgets(t *testing.T) {
	store := state.New(model.PlaybackSettings{}, model.TimelineSettings{})
	loop := dispatch.New(store.Reduce)
	loop.Register(NewCoordinator(loop, store, 0))
	rec := dispatch.NewRecorder(loop)
	testutil.RunLoop(t, loop)
	testutil.Dispatch(t, loop,
		model.ReplaceWidgets{Widgets: []model.Widget{{ID: "w1"}}},
		model.AddLayer{
			Layer:      model.Layer{ID: "a", Visible: true},
			Dimensions: []model.Dimension{{Name: model.TimeDimension, Domain: "2016-09-01T00:00:00Z"}},
		},
	)
	if got := rec.Count(model.ActionCollapseWidget); got != 1 {
		t.Fatalf("expected the open widget collapsed, got %d", got)
	}
	if got := rec.Count(model.ActionShowNotification); got != 1 {
		t.Fatalf("expected one notification, got %d", got)
	}
}
