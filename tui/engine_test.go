package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/loganrhyne/ledcoord/config"
	"github.com/loganrhyne/ledcoord/wire"
)

func testEngine() *Engine {
	conf := &config.Config{}
	conf.Grid.Pixels = 10
	conf.Coordinator.DefaultBrightness = 1.0
	conf.Coordinator.SelectedLevel = 1.0
	conf.Coordinator.UnselectedLevel = 0.3
	return NewEngine(conf, clockwork.NewFakeClock())
}

func drain(e *Engine) []wire.Envelope {
	var out []wire.Envelope
	for {
		select {
		case env := <-e.Inbound():
			out = append(out, env)
		default:
			return out
		}
	}
}

func isBlack(c colorful.Color) bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

func TestEngineInteractiveFrame(t *testing.T) {
	e := testEngine()
	err := e.Send(wire.TypeSetMode, wire.SetMode{
		Mode: wire.ModeInteractive,
		Entries: []wire.EntryFrame{
			{Index: 2, Color: "#ff0000", Type: "Desert", IsSelected: true},
			{Index: 5, Color: "#0000ff", Type: "River"},
		},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msgs := drain(e)
	if len(msgs) != 1 || msgs[0].Type != wire.TypeLEDStatus {
		t.Fatalf("Expected one led_status reply, got %v", msgs)
	}
	var st wire.LEDStatus
	if err := msgs[0].Decode(&st); err != nil {
		t.Fatalf("Decoding led_status failed: %v", err)
	}
	if st.CurrentMode != wire.ModeInteractive {
		t.Errorf("Expected reported mode interactive, got %s", st.CurrentMode)
	}

	frame := e.Frame()
	if frame[2].R < 0.99 {
		t.Errorf("Selected entry should render at full level, got %v", frame[2])
	}
	if frame[5].B < 0.29 || frame[5].B > 0.31 {
		t.Errorf("Unselected entry should render at the unselected level, got %v", frame[5])
	}
	if !isBlack(frame[0]) {
		t.Errorf("Unoccupied slot should stay dark, got %v", frame[0])
	}
}

func TestEngineUpdateReplacesEntries(t *testing.T) {
	e := testEngine()
	e.Send(wire.TypeSetMode, wire.SetMode{
		Mode:    wire.ModeInteractive,
		Entries: []wire.EntryFrame{{Index: 2, Color: "#ff0000"}},
	})
	drain(e)

	err := e.Send(wire.TypeUpdateInteractive, wire.UpdateInteractive{
		Entries: []wire.EntryFrame{{Index: 7, Color: "#00ff00"}},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msgs := drain(e); len(msgs) != 0 {
		t.Errorf("update_interactive should not trigger a status reply, got %v", msgs)
	}

	frame := e.Frame()
	if !isBlack(frame[2]) {
		t.Errorf("Replaced entry should go dark, got %v", frame[2])
	}
	if frame[7].G < 0.29 || frame[7].G > 0.31 {
		t.Errorf("New entry should render at the unselected level, got %v", frame[7])
	}
}

func TestEngineVisualizationReports(t *testing.T) {
	e := testEngine()
	e.Send(wire.TypeSetMode, wire.SetMode{Mode: wire.ModeVisualization})

	msgs := drain(e)
	if len(msgs) != 1 || msgs[0].Type != wire.TypeLEDStatus {
		t.Fatalf("Expected one led_status reply, got %v", msgs)
	}
	var st wire.LEDStatus
	if err := msgs[0].Decode(&st); err != nil {
		t.Fatalf("Decoding led_status failed: %v", err)
	}
	if st.Visualization == nil {
		t.Fatal("led_status in visualization mode should carry the pattern info")
	}
	if st.Visualization.Pattern != wire.PatternTypeDistribution {
		t.Errorf("Expected the first default pattern, got %s", st.Visualization.Pattern)
	}
	if st.Visualization.Duration != defaultDuration {
		t.Errorf("Expected duration %d, got %d", defaultDuration, st.Visualization.Duration)
	}

	e.step(0.5)
	if msgs := drain(e); len(msgs) != 0 {
		t.Errorf("No report expected after half a second, got %v", msgs)
	}
	e.step(0.5)
	msgs = drain(e)
	if len(msgs) != 1 || msgs[0].Type != wire.TypeVisualizationStatus {
		t.Fatalf("Expected one visualization_status after a full second, got %v", msgs)
	}
	var vs wire.VisualizationStatus
	if err := msgs[0].Decode(&vs); err != nil {
		t.Fatalf("Decoding visualization_status failed: %v", err)
	}
	if vs.TimeRemaining != float64(defaultDuration-1) {
		t.Errorf("Expected %d seconds remaining, got %f", defaultDuration-1, vs.TimeRemaining)
	}
	if len(vs.AvailableVisualizations) != 4 {
		t.Errorf("Expected 4 available patterns, got %d", len(vs.AvailableVisualizations))
	}
}

func TestEnginePatternRotation(t *testing.T) {
	e := testEngine()
	e.Send(wire.TypeSetMode, wire.SetMode{Mode: wire.ModeVisualization})
	e.Send(wire.TypeVisualizationControl, wire.VisualizationControl{
		Command:  wire.VizSetDuration,
		Duration: 2,
	})
	drain(e)

	e.step(2.5)
	msgs := drain(e)
	if len(msgs) != 1 || msgs[0].Type != wire.TypeVisualizationStatus {
		t.Fatalf("Expected a report after the pattern rotated, got %v", msgs)
	}
	var vs wire.VisualizationStatus
	if err := msgs[0].Decode(&vs); err != nil {
		t.Fatalf("Decoding visualization_status failed: %v", err)
	}
	if vs.Pattern != wire.PatternGeographicHeat {
		t.Errorf("Expected rotation to the second pattern, got %s", vs.Pattern)
	}
	if vs.TimeRemaining != 2 {
		t.Errorf("Expected the countdown reset to 2, got %f", vs.TimeRemaining)
	}
}

func TestEngineSelectPattern(t *testing.T) {
	e := testEngine()
	e.Send(wire.TypeVisualizationControl, wire.VisualizationControl{
		Command: wire.VizSelect,
		Pattern: wire.PatternColorWaves,
	})
	msgs := drain(e)
	if len(msgs) != 1 || msgs[0].Type != wire.TypeVisualizationStatus {
		t.Fatalf("Expected a report after selecting a pattern, got %v", msgs)
	}
	var vs wire.VisualizationStatus
	if err := msgs[0].Decode(&vs); err != nil {
		t.Fatalf("Decoding visualization_status failed: %v", err)
	}
	if vs.Pattern != wire.PatternColorWaves {
		t.Errorf("Expected color_waves selected, got %s", vs.Pattern)
	}

	e.Send(wire.TypeVisualizationControl, wire.VisualizationControl{
		Command: wire.VizSelect,
		Pattern: "sparkle",
	})
	msgs = drain(e)
	if len(msgs) != 1 || msgs[0].Type != wire.TypeError {
		t.Fatalf("Expected an error reply for an unknown pattern, got %v", msgs)
	}
	var werr wire.Error
	if err := msgs[0].Decode(&werr); err != nil {
		t.Fatalf("Decoding error payload failed: %v", err)
	}
	if !strings.Contains(werr.Message, "sparkle") {
		t.Errorf("Error message should name the pattern, got %q", werr.Message)
	}
}

func TestEngineGetStatus(t *testing.T) {
	e := testEngine()
	e.Send(wire.TypeVisualizationControl, wire.VisualizationControl{Command: wire.VizGetStatus})
	msgs := drain(e)
	if len(msgs) != 1 || msgs[0].Type != wire.TypeVisualizationStatus {
		t.Fatalf("Expected a visualization_status reply, got %v", msgs)
	}
}

func TestEngineClearAll(t *testing.T) {
	e := testEngine()
	e.Send(wire.TypeSetMode, wire.SetMode{
		Mode:    wire.ModeInteractive,
		Entries: []wire.EntryFrame{{Index: 3, Color: "#ffa028", IsSelected: true}},
	})
	drain(e)

	if err := e.Send(wire.TypeClearAll, nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	msgs := drain(e)
	if len(msgs) != 1 || msgs[0].Type != wire.TypeLEDStatus {
		t.Fatalf("Expected a led_status reply, got %v", msgs)
	}
	if e.Mode() != wire.ModeOff {
		t.Errorf("Expected mode off after clear_all, got %s", e.Mode())
	}
	for i, c := range e.Frame() {
		if !isBlack(c) {
			t.Errorf("Pixel %d should be dark after clear_all, got %v", i, c)
		}
	}
}

func TestEngineBrightness(t *testing.T) {
	e := testEngine()
	e.Send(wire.TypeSetMode, wire.SetMode{
		Mode:    wire.ModeInteractive,
		Entries: []wire.EntryFrame{{Index: 1, Color: "#ff0000", IsSelected: true}},
	})
	e.Send(wire.TypeSetBrightness, wire.SetBrightness{Brightness: 0.5})

	frame := e.Frame()
	if frame[1].R < 0.49 || frame[1].R > 0.51 {
		t.Errorf("Expected brightness to scale the frame to 0.5, got %v", frame[1])
	}
}

func TestEngineRunLoop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	conf := &config.Config{}
	conf.Grid.Pixels = 10
	conf.Coordinator.DefaultBrightness = 1.0
	conf.Coordinator.SelectedLevel = 1.0
	conf.Coordinator.UnselectedLevel = 0.3

	e := NewEngine(conf, clock)
	e.Send(wire.TypeSetMode, wire.SetMode{Mode: wire.ModeVisualization})
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Stop()

	clock.BlockUntil(1)
	for i := 0; i < 60; i++ {
		clock.Advance(animationTick)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-e.Inbound():
			if env.Type == wire.TypeVisualizationStatus {
				return
			}
		case <-deadline:
			t.Fatal("No visualization_status arrived from the run loop")
		}
	}
}

func TestStripText(t *testing.T) {
	frame := make([]colorful.Color, 4)
	frame[1] = colorful.Color{R: 1, G: 0, B: 0}
	frame[2] = colorful.Color{R: 1, G: 1, B: 1}

	text := stripText(frame, "  1 ")
	lines := strings.Split(text, "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d", len(lines))
	}
	// Pure red averages to a third of full luminance: lower half only.
	if !strings.Contains(lines[1], "[#ff0000]▅[-]") {
		t.Errorf("Expected a red mid-height block in the bottom row, got %q", lines[1])
	}
	if !strings.Contains(lines[0], "[#ffffff]█[-]") {
		t.Errorf("Expected a full white block in the top row, got %q", lines[0])
	}
	if !strings.Contains(lines[3], "[blue]  1 [-]") {
		t.Errorf("Expected the ruler line below the strip, got %q", lines[3])
	}
}

func TestScaledColor(t *testing.T) {
	if got := scaledColor(colorful.Color{R: 0.2, G: 0.1, B: 0}); got != "[#ff8000]" {
		t.Errorf("Expected [#ff8000], got %q", got)
	}
	if got := scaledColor(colorful.Color{}); got != "[#000000]" {
		t.Errorf("Expected black for an empty pixel, got %q", got)
	}
}
