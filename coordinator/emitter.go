package coordinator

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/loganrhyne/ledcoord/journal"
	"github.com/loganrhyne/ledcoord/transport"
	"github.com/loganrhyne/ledcoord/wire"
)

// Emitter owns the outbound discipline on the hardware link: it builds
// interactive payloads, suppresses byte-identical resends, and skips
// interactive sends entirely while the link is down. The last-sent cache is
// touched only from the coordinator loop.
type Emitter struct {
	channel  transport.Channel
	palette  *journal.Palette
	lastSent []byte
}

func NewEmitter(channel transport.Channel, palette *journal.Palette) *Emitter {
	return &Emitter{channel: channel, palette: palette}
}

// BuildFrames maps the visible entries to hardware frames: stable slot
// resolved against the full collection, type color, selection flag. Entries
// whose uuid cannot be resolved are left out.
func (e *Emitter) BuildFrames(view View) []wire.EntryFrame {
	slots := journal.Slots(view.All)
	frames := make([]wire.EntryFrame, 0, len(view.Visible))
	for _, entry := range view.Visible {
		slot, ok := slots[entry.UUID]
		if !ok {
			continue
		}
		frames = append(frames, wire.EntryFrame{
			Index:      slot,
			Color:      e.palette.ColorFor(entry.Type),
			Type:       entry.Type,
			IsSelected: entry.UUID == view.Selected,
		})
	}
	return frames
}

// EmitInteractive sends an update_interactive message for the view. The
// serialized payload is compared byte-for-byte against the last sent one and
// identical resends are suppressed. While the link is down nothing is sent
// or queued; the cache is cleared instead so the first send after reconnect
// always goes out. Reports whether a message went over the wire.
func (e *Emitter) EmitInteractive(view View) bool {
	payload, err := json.Marshal(wire.UpdateInteractive{Entries: e.BuildFrames(view)})
	if err != nil {
		slog.Error("Marshalling interactive payload failed", "error", err)
		return false
	}

	if !e.channel.Connected() {
		e.lastSent = nil
		return false
	}
	if e.lastSent != nil && bytes.Equal(payload, e.lastSent) {
		return false
	}
	if err := e.channel.Send(wire.TypeUpdateInteractive, json.RawMessage(payload)); err != nil {
		slog.Warn("Sending interactive update failed", "error", err)
		e.lastSent = nil
		return false
	}
	e.lastSent = payload
	return true
}

// EmitMode sends the combined set_mode message for a transition. Entering
// interactive bundles the frames and primes the dedup cache with them, so
// the next identical update_interactive is suppressed; any other target
// clears the cache.
func (e *Emitter) EmitMode(mode wire.Mode, view View) bool {
	msg := wire.SetMode{Mode: mode}
	var primed []byte
	if mode == wire.ModeInteractive {
		msg.Entries = e.BuildFrames(view)
		p, err := json.Marshal(wire.UpdateInteractive{Entries: msg.Entries})
		if err != nil {
			slog.Error("Marshalling interactive payload failed", "error", err)
			return false
		}
		primed = p
	}

	e.lastSent = nil
	if !e.channel.Connected() {
		return false
	}
	if err := e.channel.Send(wire.TypeSetMode, msg); err != nil {
		slog.Warn("Sending mode change failed", "mode", mode, "error", err)
		return false
	}
	e.lastSent = primed
	return true
}

// EmitBrightness rides on the transport's queue while the link is down, so
// it takes no connectivity guard and ignores ErrNotConnected.
func (e *Emitter) EmitBrightness(level float64) {
	if err := e.channel.Send(wire.TypeSetBrightness, wire.SetBrightness{Brightness: level}); err != nil {
		slog.Debug("Brightness change not sent", "error", err)
	}
}

// EmitVizControl sends a visualization engine command, queued by the
// transport while the link is down.
func (e *Emitter) EmitVizControl(ctrl wire.VisualizationControl) {
	if err := e.channel.Send(wire.TypeVisualizationControl, ctrl); err != nil {
		slog.Debug("Visualization control not sent", "command", ctrl.Command, "error", err)
	}
}

// EmitClearAll blanks the hardware and resets the dedup cache.
func (e *Emitter) EmitClearAll() {
	e.lastSent = nil
	if err := e.channel.Send(wire.TypeClearAll, nil); err != nil {
		slog.Debug("Clear not sent", "error", err)
	}
}
