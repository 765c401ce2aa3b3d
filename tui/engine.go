// Package tui is the simulation mode: an in-process stand-in for the LED
// hardware controller plus a terminal rendering of the strip, with keyboard
// handling that plays the dashboard's role.
package tui

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/loganrhyne/ledcoord/config"
	"github.com/loganrhyne/ledcoord/wire"
)

const (
	animationTick   = 100 * time.Millisecond
	reportInterval  = time.Second
	defaultDuration = 300
)

// Engine simulates the LED hardware controller behind the transport.Channel
// interface. It consumes the coordinator's commands, keeps a pixel frame
// rendered, and reports led_status and visualization_status the way the
// real controller does on its websocket.
type Engine struct {
	clock clockwork.Clock

	mu          sync.Mutex
	pixels      int
	mode        wire.Mode
	brightness  float64
	selLevel    float64
	unselLevel  float64
	entries     []wire.EntryFrame
	patterns    []wire.PatternInfo
	pattern     int
	duration    int
	remaining   float64
	phase       float64
	sinceReport float64
	frame       []colorful.Color
	onFrame     func([]colorful.Color)

	inbound  chan wire.Envelope
	stopchan chan struct{}
	wg       sync.WaitGroup
}

func NewEngine(conf *config.Config, clock clockwork.Clock) *Engine {
	return &Engine{
		clock:      clock,
		pixels:     conf.Grid.Pixels,
		mode:       wire.ModeInteractive,
		brightness: conf.Coordinator.DefaultBrightness,
		selLevel:   conf.Coordinator.SelectedLevel,
		unselLevel: conf.Coordinator.UnselectedLevel,
		patterns:   wire.DefaultPatterns(),
		duration:   defaultDuration,
		frame:      make([]colorful.Color, conf.Grid.Pixels),
		inbound:    make(chan wire.Envelope, 16),
		stopchan:   make(chan struct{}),
	}
}

// OnFrame registers the render callback. Must be set before Start.
func (e *Engine) OnFrame(fn func([]colorful.Color)) {
	e.onFrame = fn
}

func (e *Engine) Start() error {
	e.wg.Add(1)
	go e.run()
	return nil
}

func (e *Engine) Stop() {
	close(e.stopchan)
	e.wg.Wait()
}

func (e *Engine) Connected() bool { return true }

func (e *Engine) Inbound() <-chan wire.Envelope { return e.inbound }

// Send consumes one coordinator command. The real controller receives these
// over its websocket; here they arrive as a method call.
func (e *Engine) Send(msgType string, data any) error {
	env, err := wire.NewEnvelope(msgType, data)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	switch env.Type {
	case wire.TypeSetMode:
		var m wire.SetMode
		if err := env.Decode(&m); err != nil {
			return err
		}
		e.mode = m.Mode
		if len(m.Entries) > 0 {
			e.entries = m.Entries
		}
		if e.mode == wire.ModeVisualization {
			e.remaining = float64(e.duration)
			e.sinceReport = 0
		}
		e.reply(e.statusLocked())
	case wire.TypeUpdateInteractive:
		var u wire.UpdateInteractive
		if err := env.Decode(&u); err != nil {
			return err
		}
		e.entries = u.Entries
	case wire.TypeClearAll:
		e.mode = wire.ModeOff
		e.entries = nil
		e.reply(e.statusLocked())
	case wire.TypeSetBrightness:
		var b wire.SetBrightness
		if err := env.Decode(&b); err != nil {
			return err
		}
		e.brightness = b.Brightness
	case wire.TypeVisualizationControl:
		var vc wire.VisualizationControl
		if err := env.Decode(&vc); err != nil {
			return err
		}
		e.controlLocked(vc)
	}
	e.renderLocked()
	return nil
}

// Frame returns a copy of the current pixel frame.
func (e *Engine) Frame() []colorful.Color {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]colorful.Color, len(e.frame))
	copy(out, e.frame)
	return out
}

// Mode returns the mode the simulated hardware is currently in.
func (e *Engine) Mode() wire.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Engine) run() {
	defer e.wg.Done()
	ticker := e.clock.NewTicker(animationTick)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopchan:
			return
		case <-ticker.Chan():
			e.step(animationTick.Seconds())
		}
	}
}

// step advances the animation by dt seconds. Split out from the run loop so
// tests can drive the engine without a ticker.
func (e *Engine) step(dt float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != wire.ModeVisualization {
		return
	}
	e.phase += dt
	e.remaining -= dt
	if e.remaining <= 0 {
		e.pattern = (e.pattern + 1) % len(e.patterns)
		e.remaining = float64(e.duration)
		e.sinceReport = 0
		e.reply(e.reportLocked())
	} else {
		e.sinceReport += dt
		if e.sinceReport >= reportInterval.Seconds() {
			e.sinceReport = 0
			e.reply(e.reportLocked())
		}
	}
	e.renderLocked()
}

func (e *Engine) controlLocked(vc wire.VisualizationControl) {
	switch vc.Command {
	case wire.VizGetStatus:
		e.reply(e.reportLocked())
	case wire.VizSelect:
		for i, p := range e.patterns {
			if p.ID == vc.Pattern {
				e.pattern = i
				e.remaining = float64(e.duration)
				e.phase = 0
				e.reply(e.reportLocked())
				return
			}
		}
		env, err := wire.NewEnvelope(wire.TypeError, wire.Error{
			Message: fmt.Sprintf("unknown pattern %q", vc.Pattern),
		})
		if err == nil {
			e.reply(env)
		}
	case wire.VizSetDuration:
		if vc.Duration > 0 {
			e.duration = vc.Duration
			if e.remaining > float64(e.duration) {
				e.remaining = float64(e.duration)
			}
			e.reply(e.reportLocked())
		}
	}
}

func (e *Engine) statusLocked() wire.Envelope {
	st := wire.LEDStatus{CurrentMode: e.mode}
	if e.mode == wire.ModeVisualization {
		info := e.infoLocked()
		st.Visualization = &info
	}
	env, _ := wire.NewEnvelope(wire.TypeLEDStatus, st)
	return env
}

func (e *Engine) infoLocked() wire.VisualizationInfo {
	p := e.patterns[e.pattern]
	return wire.VisualizationInfo{
		Pattern:       p.ID,
		Name:          p.Name,
		Duration:      e.duration,
		TimeRemaining: e.remaining,
	}
}

func (e *Engine) reportLocked() wire.Envelope {
	info := e.infoLocked()
	env, _ := wire.NewEnvelope(wire.TypeVisualizationStatus, wire.VisualizationStatus{
		Pattern:                 info.Pattern,
		Name:                    info.Name,
		Duration:                info.Duration,
		TimeRemaining:           info.TimeRemaining,
		AvailableVisualizations: e.patterns,
	})
	return env
}

// reply pushes a hardware message towards the coordinator without ever
// blocking. During teardown nobody reads the channel anymore.
func (e *Engine) reply(env wire.Envelope) {
	select {
	case e.inbound <- env:
	default:
	}
}

func (e *Engine) renderLocked() {
	for i := range e.frame {
		e.frame[i] = colorful.Color{}
	}
	switch e.mode {
	case wire.ModeInteractive:
		e.renderEntriesLocked()
	case wire.ModeVisualization:
		e.renderPatternLocked()
	}
	if e.onFrame != nil {
		out := make([]colorful.Color, len(e.frame))
		copy(out, e.frame)
		e.onFrame(out)
	}
}

func (e *Engine) renderEntriesLocked() {
	for _, entry := range e.entries {
		if entry.Index < 0 || entry.Index >= e.pixels {
			continue
		}
		c, err := colorful.Hex(entry.Color)
		if err != nil {
			continue
		}
		level := e.unselLevel
		if entry.IsSelected {
			level = e.selLevel
		}
		level *= e.brightness
		e.frame[entry.Index] = colorful.Color{R: c.R * level, G: c.G * level, B: c.B * level}
	}
}

func (e *Engine) renderPatternLocked() {
	switch e.patterns[e.pattern].ID {
	case wire.PatternTypeDistribution:
		e.renderDistributionLocked()
	case wire.PatternGeographicHeat:
		e.renderHeatLocked()
	case wire.PatternTimelineWave:
		e.renderWaveLocked()
	default:
		e.renderColorWavesLocked()
	}
}

// renderDistributionLocked draws one band per entry color, widths
// proportional to the color's share of the collection, all breathing in
// sync. Without a collection the strip glows faintly instead.
func (e *Engine) renderDistributionLocked() {
	counts := make(map[string]int)
	var order []string
	for _, entry := range e.entries {
		if counts[entry.Color] == 0 {
			order = append(order, entry.Color)
		}
		counts[entry.Color]++
	}
	level := e.brightness * (0.55 + 0.45*math.Sin(e.phase*2))
	if len(order) == 0 {
		for i := range e.frame {
			e.frame[i] = colorful.Color{R: 0.2 * level, G: 0.2 * level, B: 0.2 * level}
		}
		return
	}
	pos := 0
	for _, hex := range order {
		width := counts[hex] * e.pixels / len(e.entries)
		c, err := colorful.Hex(hex)
		if err != nil {
			pos += width
			continue
		}
		for i := pos; i < pos+width && i < e.pixels; i++ {
			e.frame[i] = colorful.Color{R: c.R * level, G: c.G * level, B: c.B * level}
		}
		pos += width
	}
}

// renderHeatLocked pulses a warm gradient, hottest in the middle of the
// strip.
func (e *Engine) renderHeatLocked() {
	denom := float64(max(e.pixels-1, 1))
	for i := range e.frame {
		edge := math.Abs(float64(i)/denom-0.5) * 2
		heat := (1 - edge) * (0.7 + 0.3*math.Sin(e.phase*3+float64(i)*0.2))
		e.frame[i] = colorful.Hsv(40*heat, 1, heat*e.brightness)
	}
}

// renderWaveLocked sweeps a bright pulse along the strip, one sweep every
// eight seconds.
func (e *Engine) renderWaveLocked() {
	pos := math.Mod(e.phase/8, 1) * float64(e.pixels)
	for i := range e.frame {
		d := float64(i) - pos
		v := math.Exp(-d * d / 18)
		e.frame[i] = colorful.Hsv(210, 0.8, v*e.brightness)
	}
}

// renderColorWavesLocked rotates the full hue circle along the strip.
func (e *Engine) renderColorWavesLocked() {
	for i := range e.frame {
		hue := math.Mod(e.phase*45+float64(i)*360/float64(e.pixels), 360)
		e.frame[i] = colorful.Hsv(hue, 1, e.brightness)
	}
}
