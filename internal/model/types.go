package model

import "time"

// PlaybackStatus is the state of the animation state machine.
type PlaybackStatus string

const (
	StatusStop  PlaybackStatus = "STOP"
	StatusPlay  PlaybackStatus = "PLAY"
	StatusPause PlaybackStatus = "PAUSE"
)

// SnapType selects which side of an interval domain value is used.
type SnapType string

const (
	SnapStart SnapType = "start"
	SnapEnd   SnapType = "end"
)

// TimeDimension is the dimension name that drives the timeline.
const TimeDimension = "time"

// LoadingTimeline is the global key of TimelineState.Loading.
const LoadingTimeline = "timeline"

// TimeRange is a closed [Start, End] window. A zero range is absent.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

func (r TimeRange) Width() time.Duration {
	if r.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Source describes where a dimension's values come from.
type Source interface {
	SourceType() string
}

// MultidimSource is a remote multidimensional-extension endpoint.
type MultidimSource struct {
	URL     string
	Version string
}

func (MultidimSource) SourceType() string { return "multidim-extension" }

// StaticSource carries values already downloaded with the layer
// capabilities. Entries may be instants or "start/end" intervals.
type StaticSource struct {
	Values []string
}

func (StaticSource) SourceType() string { return "static" }

// Dimension is a layer dimension descriptor. Domain is the raw domain
// string as advertised, which may be a single value, a "start--end"
// pair, a comma separated list or a "start/end" interval.
type Dimension struct {
	Name   string
	Domain string
	Source Source
}

type Layer struct {
	ID         string
	Name       string
	Title      string
	Group      string
	Visible    bool
	SingleTile bool
}

// Viewport is the current map extent used as spatial filter when the
// timeline is synced with the map.
type Viewport struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
	CRS  string
}

func (v Viewport) IsZero() bool {
	return v == Viewport{}
}

type PlaybackSettings struct {
	TimeStep      int           `yaml:"time_step"`
	StepUnit      string        `yaml:"step_unit"`
	FrameDuration time.Duration `yaml:"frame_duration"`
	Following     bool          `yaml:"following"`
}

// PlaybackMetadata caches the neighbours of ForTime. A zero Next or
// Previous means no neighbour exists in that direction.
type PlaybackMetadata struct {
	ForTime          time.Time
	Next             time.Time
	Previous         time.Time
	TimeIntervalData bool
}

type PlaybackState struct {
	Status        PlaybackStatus
	Frames        []time.Time
	CurrentFrame  int
	PlaybackRange TimeRange
	Settings      PlaybackSettings
	Metadata      PlaybackMetadata
}

type TimelineSettings struct {
	AutoSelect       bool     `yaml:"auto_select"`
	Collapsed        bool     `yaml:"collapsed"`
	SnapType         SnapType `yaml:"snap_type"`
	MapSync          bool     `yaml:"map_sync"`
	EndValuesSupport bool     `yaml:"end_values_support"`
	ShowHiddenLayers bool     `yaml:"show_hidden_layers"`
	ExpandLimit      int      `yaml:"expand_limit"`
}

// Histogram is a bucketed count of domain values. Domain keeps the
// service's "start/end/resolution" descriptor.
type Histogram struct {
	Domain     string
	Start      time.Time
	End        time.Time
	Resolution string
	Values     []int
}

// RangeData is the per-layer visualization cache for the visible range.
// Exactly one of Histogram or Domain is set on success; Err is set when
// the last refresh of this layer failed.
type RangeData struct {
	Range     TimeRange
	Histogram *Histogram
	Domain    []time.Time
	Err       string
}

type TimelineState struct {
	Range         TimeRange
	RangeData     map[string]RangeData
	Loading       map[string]bool
	SelectedLayer string
	Settings      TimelineSettings
}

type DimensionState struct {
	CurrentTime time.Time
	OffsetTime  time.Time
	// Data maps dimension name -> layer id -> descriptor.
	Data map[string]map[string]Dimension
}

type LayersState struct {
	Layers   []Layer
	Viewport Viewport
}

type Widget struct {
	ID        string
	Pinned    bool
	Collapsed bool
}

type WidgetsState struct {
	Widgets []Widget
}

type NotificationLevel string

const (
	NotificationInfo    NotificationLevel = "info"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

type Notification struct {
	ID          string
	Level       NotificationLevel
	Title       string
	Message     string
	AutoDismiss time.Duration
}

// MapConfig is the persisted configuration a map is loaded from.
type MapConfig struct {
	MapID         string
	Layers        []Layer
	Dimensions    map[string][]Dimension
	Timeline      TimelineSettings
	SelectedLayer string
	Playback      PlaybackSettings
	PlaybackRange TimeRange
	UpdatedAt     time.Time
}

// Notification message keys emitted by the engine.
const (
	MsgTimelineCollapsed = "timeline.collapsed_by_widgets"
	MsgWidgetsCollapsed  = "widgets.collapsed_by_timeline"
	MsgFramesLoadFailed  = "playback.frames_load_failed"
	MsgRangeDataFailed   = "timeline.range_data_failed"
)
