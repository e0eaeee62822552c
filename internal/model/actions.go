package model

import "time"

// ActionType names an event flowing through the dispatch loop.
type ActionType string

const (
	ActionPlay                   ActionType = "PLAY"
	ActionPause                  ActionType = "PAUSE"
	ActionStop                   ActionType = "STOP"
	ActionSetFrames              ActionType = "SET_FRAMES"
	ActionAppendFrames           ActionType = "APPEND_FRAMES"
	ActionSetCurrentFrame        ActionType = "SET_CURRENT_FRAME"
	ActionStepMove               ActionType = "ANIMATION_STEP_MOVE"
	ActionSetPlaybackRange       ActionType = "SET_PLAYBACK_RANGE"
	ActionUpdatePlaybackSettings ActionType = "UPDATE_PLAYBACK_SETTINGS"
	ActionUpdateMetadata         ActionType = "UPDATE_METADATA"

	ActionSetCurrentTime      ActionType = "SET_CURRENT_TIME"
	ActionMoveTime            ActionType = "MOVE_TIME"
	ActionSetOffsetTime       ActionType = "SET_OFFSET_TIME"
	ActionUpdateDimensionData ActionType = "UPDATE_LAYER_DIMENSION_DATA"

	ActionSelectTime             ActionType = "TIMELINE_SELECT_TIME"
	ActionSetRange               ActionType = "TIMELINE_RANGE_CHANGED"
	ActionEnableOffset           ActionType = "TIMELINE_ENABLE_OFFSET"
	ActionSelectLayer            ActionType = "TIMELINE_SELECT_LAYER"
	ActionInitRange              ActionType = "TIMELINE_INIT_RANGE"
	ActionSetLoading             ActionType = "TIMELINE_LOADING"
	ActionSetRangeData           ActionType = "TIMELINE_RANGE_DATA_LOADED"
	ActionUpdateTimelineSettings ActionType = "TIMELINE_UPDATE_SETTINGS"
	ActionCollapseTimeline       ActionType = "TIMELINE_COLLAPSE"
	ActionExpandTimeline         ActionType = "TIMELINE_EXPAND"

	ActionAddLayer              ActionType = "ADD_LAYER"
	ActionRemoveLayer           ActionType = "REMOVE_NODE"
	ActionChangeLayerProperties ActionType = "CHANGE_LAYER_PROPERTIES"
	ActionViewportChanged       ActionType = "CHANGE_MAP_VIEW"

	ActionReplaceWidgets    ActionType = "WIDGETS_REPLACE"
	ActionExpandWidget      ActionType = "WIDGET_EXPAND"
	ActionCollapseWidget    ActionType = "WIDGET_COLLAPSE"
	ActionToggleCollapseAll ActionType = "WIDGETS_TOGGLE_COLLAPSE_ALL"

	ActionResetControls    ActionType = "RESET_CONTROLS"
	ActionMapLoaded        ActionType = "MAP_CONFIG_LOADED"
	ActionLocationChanged  ActionType = "LOCATION_CHANGE"
	ActionShowNotification ActionType = "SHOW_NOTIFICATION"
)

// Action is a discrete event. UI commands, fetch results and timer
// ticks are all actions applied in dispatch order.
type Action interface {
	Type() ActionType
}

type Play struct{}

type Pause struct{}

type Stop struct{}

// SetFrames replaces the animation buffer.
type SetFrames struct {
	Frames []time.Time
}

// AppendFrames appends a prefetched page after the buffered frames.
type AppendFrames struct {
	Frames []time.Time
}

type SetCurrentFrame struct {
	Frame int
}

// StepMove is a manual single step; Direction is +1 or -1.
type StepMove struct {
	Direction int
}

// SetPlaybackRange bounds the animation. A zero Range clears it.
type SetPlaybackRange struct {
	Range TimeRange
}

type UpdatePlaybackSettings struct {
	Settings PlaybackSettings
}

type UpdateMetadata struct {
	Metadata PlaybackMetadata
}

type SetCurrentTime struct {
	Time time.Time
}

// MoveTime moves the current time keeping the offset distance, used
// by animation so range mode windows travel as a whole.
type MoveTime struct {
	Time time.Time
}

type SetOffsetTime struct {
	Time time.Time
}

type UpdateDimensionData struct {
	Dimension string
	LayerID   string
	Data      Dimension
}

// SelectTime is a scrub request: the time is snapped to the guide
// layer (or GroupID when set) before it becomes the current time.
type SelectTime struct {
	Time    time.Time
	GroupID string
}

type SetRange struct {
	Range TimeRange
}

type EnableOffset struct {
	Enabled bool
}

type SelectLayer struct {
	LayerID string
}

// InitRange aligns current time, offset and range to the raw domain of
// a layer, typically right after the guide layer is known.
type InitRange struct {
	LayerID string
	Domain  string
}

type SetLoading struct {
	Key     string
	Loading bool
}

type SetRangeData struct {
	LayerID string
	Data    RangeData
}

type UpdateTimelineSettings struct {
	Settings TimelineSettings
}

// CollapseTimeline hides the timeline. Auto is set when the exclusion
// coordinator issued it rather than the user.
type CollapseTimeline struct {
	Auto bool
}

type ExpandTimeline struct {
	Auto bool
}

type AddLayer struct {
	Layer      Layer
	Dimensions []Dimension
}

type RemoveLayer struct {
	LayerID string
}

// LayerProperties lists the fields to change; nil fields are kept.
type LayerProperties struct {
	Visible    *bool
	SingleTile *bool
}

type ChangeLayerProperties struct {
	LayerID    string
	Properties LayerProperties
}

type ViewportChanged struct {
	Viewport Viewport
}

type ReplaceWidgets struct {
	Widgets []Widget
}

type ExpandWidget struct {
	ID string
}

type CollapseWidget struct {
	ID   string
	Auto bool
}

type ToggleCollapseAll struct{}

type ResetControls struct{}

type MapLoaded struct {
	Config MapConfig
}

type LocationChanged struct {
	Path string
}

type ShowNotification struct {
	Notification Notification
}

func (Play) Type() ActionType                   { return ActionPlay }
func (Pause) Type() ActionType                  { return ActionPause }
func (Stop) Type() ActionType                   { return ActionStop }
func (SetFrames) Type() ActionType              { return ActionSetFrames }
func (AppendFrames) Type() ActionType           { return ActionAppendFrames }
func (SetCurrentFrame) Type() ActionType        { return ActionSetCurrentFrame }
func (StepMove) Type() ActionType               { return ActionStepMove }
func (SetPlaybackRange) Type() ActionType       { return ActionSetPlaybackRange }
func (UpdatePlaybackSettings) Type() ActionType { return ActionUpdatePlaybackSettings }
func (UpdateMetadata) Type() ActionType         { return ActionUpdateMetadata }
func (SetCurrentTime) Type() ActionType         { return ActionSetCurrentTime }
func (MoveTime) Type() ActionType               { return ActionMoveTime }
func (SetOffsetTime) Type() ActionType          { return ActionSetOffsetTime }
func (UpdateDimensionData) Type() ActionType    { return ActionUpdateDimensionData }
func (SelectTime) Type() ActionType             { return ActionSelectTime }
func (SetRange) Type() ActionType               { return ActionSetRange }
func (EnableOffset) Type() ActionType           { return ActionEnableOffset }
func (SelectLayer) Type() ActionType            { return ActionSelectLayer }
func (InitRange) Type() ActionType              { return ActionInitRange }
func (SetLoading) Type() ActionType             { return ActionSetLoading }
func (SetRangeData) Type() ActionType           { return ActionSetRangeData }
func (UpdateTimelineSettings) Type() ActionType { return ActionUpdateTimelineSettings }
func (CollapseTimeline) Type() ActionType       { return ActionCollapseTimeline }
func (ExpandTimeline) Type() ActionType         { return ActionExpandTimeline }
func (AddLayer) Type() ActionType               { return ActionAddLayer }
func (RemoveLayer) Type() ActionType            { return ActionRemoveLayer }
func (ChangeLayerProperties) Type() ActionType  { return ActionChangeLayerProperties }
func (ViewportChanged) Type() ActionType        { return ActionViewportChanged }
func (ReplaceWidgets) Type() ActionType         { return ActionReplaceWidgets }
func (ExpandWidget) Type() ActionType           { return ActionExpandWidget }
func (CollapseWidget) Type() ActionType         { return ActionCollapseWidget }
func (ToggleCollapseAll) Type() ActionType      { return ActionToggleCollapseAll }
func (ResetControls) Type() ActionType          { return ActionResetControls }
func (MapLoaded) Type() ActionType              { return ActionMapLoaded }
func (LocationChanged) Type() ActionType        { return ActionLocationChanged }
func (ShowNotification) Type() ActionType       { return ActionShowNotification }

func BoolPtr(v bool) *bool {
	return &v
}
