package coordinator

import (
	"github.com/loganrhyne/ledcoord/journal"
	"github.com/loganrhyne/ledcoord/wire"
)

// Action names a manual control request.
type Action string

const (
	ActionSetMode       Action = "set_mode"
	ActionTogglePower   Action = "toggle_power"
	ActionSetBrightness Action = "set_brightness"
	ActionSelectPattern Action = "select_pattern"
	ActionSetDuration   Action = "set_duration"
	ActionGetStatus     Action = "get_status"
)

// Control is one queued manual request. Depending on Action exactly one of
// the optional fields carries the argument.
type Control struct {
	Action     Action
	Mode       wire.Mode
	Brightness float64
	Pattern    string
	Duration   int
}

// View is one snapshot of the dashboard state: the full collection plus the
// filtered visible subset in display order and the current selection.
type View struct {
	All      []journal.Entry
	Visible  []journal.Entry
	Selected string
}

// NewView resolves a wire-level state update into a View. Visible uuids that
// are not part of the collection are dropped.
func NewView(upd wire.StateUpdate) View {
	byUUID := make(map[string]journal.Entry, len(upd.AllEntries))
	for _, e := range upd.AllEntries {
		byUUID[e.UUID] = e
	}
	visible := make([]journal.Entry, 0, len(upd.VisibleUUIDs))
	for _, id := range upd.VisibleUUIDs {
		if e, ok := byUUID[id]; ok {
			visible = append(visible, e)
		}
	}
	return View{
		All:      upd.AllEntries,
		Visible:  visible,
		Selected: upd.SelectedUUID,
	}
}
