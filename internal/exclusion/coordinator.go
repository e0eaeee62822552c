// Package exclusion keeps the timeline and the floating widgets from
// being expanded at the same time.
package exclusion

import (
	"time"

	"github.com/google/uuid"

	"github.com/g960059/maptime/internal/dispatch"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/state"
)

// Cause tells which side changed last; that side wins.
type Cause int

const (
	CauseWidgets Cause = iota
	CauseTimeline
)

// View is the part of the state the rules look at.
type View struct {
	TimelineCollapsed bool
	HasTimeLayers     bool
	// Expanded lists the expanded non-pinned widgets.
	Expanded []string
}

func (v View) TimelineVisible() bool {
	return !v.TimelineCollapsed && v.HasTimeLayers
}

type Decision struct {
	CollapseTimeline bool
	CollapseWidgets  []string
	ExpandTimeline   bool
}

func (d Decision) IsZero() bool {
	return !d.CollapseTimeline && !d.ExpandTimeline && len(d.CollapseWidgets) == 0
}

// Next applies the exclusion rules:
//  1. a widget expanded next to a visible timeline collapses the timeline;
//  2. a timeline shown next to expanded widgets collapses the widgets;
//  3. a tray left without expanded widgets re-expands a collapsed
//     timeline that has layers to show.
func Next(cause Cause, v View) Decision {
	switch cause {
	case CauseWidgets:
		if len(v.Expanded) > 0 && v.TimelineVisible() {
			return Decision{CollapseTimeline: true}
		}
		if len(v.Expanded) == 0 && v.TimelineCollapsed && v.HasTimeLayers {
			return Decision{ExpandTimeline: true}
		}
	case CauseTimeline:
		if len(v.Expanded) > 0 && v.TimelineVisible() {
			return Decision{CollapseWidgets: v.Expanded}
		}
	}
	return Decision{}
}

// ViewOf builds the rule input from the store.
func ViewOf(s *state.Store) View {
	v := View{
		TimelineCollapsed: s.Timeline.Settings.Collapsed,
		HasTimeLayers:     len(state.TimeLayers(s.Layers, s.Dimension)) > 0,
	}
	for _, w := range s.Widgets.Widgets {
		if !w.Pinned && !w.Collapsed {
			v.Expanded = append(v.Expanded, w.ID)
		}
	}
	return v
}

// Coordinator applies Next after every relevant action. A notification
// is shown once per kind of collapse until the user expands that side
// again.
type Coordinator struct {
	loop        *dispatch.Loop
	store       *state.Store
	notifyAfter time.Duration

	timelineNotified bool
	widgetsNotified  bool
}

func NewCoordinator(loop *dispatch.Loop, store *state.Store, notifyAfter time.Duration) *Coordinator {
	return &Coordinator{loop: loop, store: store, notifyAfter: notifyAfter}
}

func (c *Coordinator) Handle(a model.Action) {
	switch act := a.(type) {
	case model.ExpandWidget:
		c.widgetsNotified = false
		c.apply(CauseWidgets)
	case model.ToggleCollapseAll:
		if len(ViewOf(c.store).Expanded) > 0 {
			c.widgetsNotified = false
		}
		c.apply(CauseWidgets)
	case model.ReplaceWidgets:
		c.apply(CauseWidgets)
	case model.CollapseWidget:
		if !act.Auto {
			c.apply(CauseWidgets)
		}
	case model.ExpandTimeline:
		if !act.Auto {
			c.timelineNotified = false
			c.apply(CauseTimeline)
		}
	case model.AddLayer, model.ChangeLayerProperties, model.UpdateDimensionData, model.MapLoaded:
		c.apply(CauseTimeline)
	}
}

func (c *Coordinator) apply(cause Cause) {
	d := Next(cause, ViewOf(c.store))
	if d.IsZero() {
		return
	}
	switch {
	case d.CollapseTimeline:
		c.loop.Emit(model.CollapseTimeline{Auto: true})
		if !c.timelineNotified {
			c.timelineNotified = true
			c.notify(model.MsgTimelineCollapsed)
		}
	case len(d.CollapseWidgets) > 0:
		for _, id := range d.CollapseWidgets {
			c.loop.Emit(model.CollapseWidget{ID: id, Auto: true})
		}
		if !c.widgetsNotified {
			c.widgetsNotified = true
			c.notify(model.MsgWidgetsCollapsed)
		}
	case d.ExpandTimeline:
		c.loop.Emit(model.ExpandTimeline{Auto: true})
	}
}

func (c *Coordinator) notify(message string) {
	c.loop.Logger().Debug("exclusion notification", "message", message)
	c.loop.Emit(model.ShowNotification{Notification: model.Notification{
		ID:          uuid.NewString(),
		Level:       model.NotificationInfo,
		Title:       "layout",
		Message:     message,
		AutoDismiss: c.notifyAfter,
	}})
}
