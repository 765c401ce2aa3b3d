package wire

import "github.com/loganrhyne/ledcoord/journal"

// EntryFrame is one visible journal entry as the hardware renders it: the
// fixed strip position, the type color, and whether it is the selected
// entry. Field order matters for the emitter's byte-level dedup, so do not
// reorder.
type EntryFrame struct {
	Index      int    `json:"index"`
	Color      string `json:"color"`
	Type       string `json:"type"`
	IsSelected bool   `json:"isSelected"`
}

// SetMode switches the hardware mode. Entries is bundled when and only when
// the target mode is interactive, so the hardware never sits on a mode with
// nothing to show.
type SetMode struct {
	Mode    Mode         `json:"mode"`
	Entries []EntryFrame `json:"entries,omitempty"`
}

// UpdateInteractive replaces the rendered entry set while already in
// interactive mode.
type UpdateInteractive struct {
	Entries []EntryFrame `json:"entries"`
}

// SetBrightness adjusts the global output level, 0.0 to 1.0.
type SetBrightness struct {
	Brightness float64 `json:"brightness"`
}

// Visualization control sub-commands.
const (
	VizGetStatus   = "get_status"
	VizSelect      = "select"
	VizSetDuration = "set_duration"
)

// VisualizationControl drives the hardware-side visualization engine.
// Pattern is set for select, Duration (seconds) for set_duration.
type VisualizationControl struct {
	Command  string `json:"command"`
	Pattern  string `json:"pattern,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// VisualizationInfo describes the running visualization as reported by the
// hardware.
type VisualizationInfo struct {
	Pattern       string  `json:"pattern"`
	Name          string  `json:"name,omitempty"`
	Duration      int     `json:"duration"`
	TimeRemaining float64 `json:"time_remaining"`
}

// PatternInfo names one selectable visualization pattern.
type PatternInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LEDStatus is the hardware's authoritative report of its current state.
type LEDStatus struct {
	CurrentMode   Mode               `json:"current_mode"`
	Visualization *VisualizationInfo `json:"visualization,omitempty"`
}

// VisualizationStatus is the periodic progress report of the visualization
// engine.
type VisualizationStatus struct {
	Pattern                 string        `json:"pattern"`
	Name                    string        `json:"name,omitempty"`
	Duration                int           `json:"duration"`
	TimeRemaining           float64       `json:"time_remaining"`
	AvailableVisualizations []PatternInfo `json:"available_visualizations"`
}

// StateUpdate is the dashboard's report of its current filter and selection
// state. AllEntries is the full collection (slot assignment needs it),
// VisibleUUIDs the filtered subset in display order, SelectedUUID empty when
// nothing is selected.
type StateUpdate struct {
	AllEntries   []journal.Entry `json:"allEntries"`
	VisibleUUIDs []string        `json:"visibleUUIDs"`
	SelectedUUID string          `json:"selectedUUID,omitempty"`
}

// LEDCommand is a manual dashboard action.
type LEDCommand struct {
	Action     string   `json:"action"`
	Mode       Mode     `json:"mode,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
}

// Error carries a rejected request back to the dashboard.
type Error struct {
	Message string `json:"message"`
}

// Pattern ids implemented by the installation's visualization engine. The
// hardware's available_visualizations report replaces this set at runtime;
// these are the known defaults so pattern selection can be validated before
// the first status arrives.
const (
	PatternTypeDistribution = "type_distribution"
	PatternGeographicHeat   = "geographic_heat"
	PatternTimelineWave     = "timeline_wave"
	PatternColorWaves       = "color_waves"
)

// DefaultPatterns returns the built-in pattern set of the hardware engine.
func DefaultPatterns() []PatternInfo {
	return []PatternInfo{
		{ID: PatternTypeDistribution, Name: "Type Distribution"},
		{ID: PatternGeographicHeat, Name: "Geographic Heat"},
		{ID: PatternTimelineWave, Name: "Timeline Wave"},
		{ID: PatternColorWaves, Name: "Color Waves"},
	}
}
