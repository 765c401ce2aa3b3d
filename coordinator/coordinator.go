// Package coordinator implements the LED mode state machine sitting between
// the journal dashboard and the hardware controller. All state lives behind
// a single loop goroutine: dashboard snapshots arrive latest-wins, manual
// control requests through a queue, and together with timer expiry and
// inbound hardware messages they are the only things that can mutate mode
// state.
package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/loganrhyne/ledcoord/config"
	"github.com/loganrhyne/ledcoord/journal"
	"github.com/loganrhyne/ledcoord/transport"
	"github.com/loganrhyne/ledcoord/util"
	"github.com/loganrhyne/ledcoord/wire"
)

const controlQueueSize = 16

// Status is the externally visible coordinator state, refreshed after every
// loop iteration. Visualization is set while the mode is visualization and
// a session report has arrived.
type Status struct {
	Mode           wire.Mode               `json:"mode"`
	LastActiveMode wire.Mode               `json:"last_active_mode"`
	Brightness     float64                 `json:"brightness"`
	Connected      bool                    `json:"connected"`
	Visualization  *wire.VisualizationInfo `json:"visualization,omitempty"`
}

func (s Status) equal(o Status) bool {
	if s.Mode != o.Mode || s.LastActiveMode != o.LastActiveMode ||
		s.Brightness != o.Brightness || s.Connected != o.Connected {
		return false
	}
	if (s.Visualization == nil) != (o.Visualization == nil) {
		return false
	}
	return s.Visualization == nil || *s.Visualization == *o.Visualization
}

// Coordinator owns the mode state machine. The zero value is not usable;
// construct with New.
type Coordinator struct {
	cfg     config.CoordinatorConfig
	channel transport.Channel
	clock   clockwork.Clock

	stateEv  *util.Latest[View]
	controls chan Control

	emitter  *Emitter
	tracker  *SessionTracker
	idle     *idleTimer
	detector *journal.ActivityDetector

	// Loop-owned state. Never read or written outside the run goroutine.
	mode           wire.Mode
	lastActiveMode wire.Mode
	brightness     float64
	view           View

	statusMu  sync.RWMutex
	published Status
	onStatus  func(Status)
	onEvent   func(wire.Envelope)

	stopchan chan struct{}
	wg       sync.WaitGroup
}

func New(cfg config.CoordinatorConfig, palette *journal.Palette, channel transport.Channel, clock clockwork.Clock) *Coordinator {
	return &Coordinator{
		cfg:            cfg,
		channel:        channel,
		clock:          clock,
		stateEv:        util.NewLatest[View](),
		controls:       make(chan Control, controlQueueSize),
		emitter:        NewEmitter(channel, palette),
		tracker:        NewSessionTracker(),
		idle:           newIdleTimer(clock, cfg.InactivityTimeout),
		detector:       journal.NewActivityDetector(),
		mode:           wire.ModeInteractive,
		lastActiveMode: wire.ModeInteractive,
		brightness:     cfg.DefaultBrightness,
		stopchan:       make(chan struct{}),
	}
}

// OnStatus registers a callback fired from the loop goroutine whenever the
// published status changes. Must be set before Start.
func (c *Coordinator) OnStatus(fn func(Status)) {
	c.onStatus = fn
}

// OnEvent registers a callback for hardware events that are relayed to the
// dashboard as-is (visualization_status). Must be set before Start.
func (c *Coordinator) OnEvent(fn func(wire.Envelope)) {
	c.onEvent = fn
}

// Start launches the loop goroutine.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop shuts the loop down. Teardown cancels any armed timer and blanks the
// hardware with clear_all, which also stops a running visualization.
func (c *Coordinator) Stop() {
	close(c.stopchan)
	c.wg.Wait()
}

// SubmitState feeds the latest dashboard snapshot. Latest wins: an
// unprocessed older snapshot is superseded, never queued behind.
func (c *Coordinator) SubmitState(upd wire.StateUpdate) {
	c.stateEv.Put(NewView(upd))
}

// Do queues a manual control request. Requests are processed in order and
// never coalesced. Invalid requests are rejected here, before anything is
// queued or sent.
func (c *Coordinator) Do(ctrl Control) error {
	switch ctrl.Action {
	case ActionSetMode:
		if !ctrl.Mode.Valid() {
			return fmt.Errorf("unknown mode %q", ctrl.Mode)
		}
	case ActionSetBrightness:
		if ctrl.Brightness < 0.0 || ctrl.Brightness > 1.0 {
			return fmt.Errorf("brightness %v out of range 0.0 to 1.0", ctrl.Brightness)
		}
	case ActionSelectPattern:
		if !c.tracker.Knows(ctrl.Pattern) {
			return fmt.Errorf("unknown visualization pattern %q", ctrl.Pattern)
		}
	case ActionSetDuration:
		if ctrl.Duration <= 0 {
			return fmt.Errorf("duration must be positive, got %d", ctrl.Duration)
		}
	case ActionTogglePower, ActionGetStatus:
	default:
		return fmt.Errorf("unknown action %q", ctrl.Action)
	}

	select {
	case c.controls <- ctrl:
		return nil
	default:
		return errors.New("control queue full")
	}
}

// Status returns the last published coordinator state.
func (c *Coordinator) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.published
}

// Patterns returns the currently selectable visualization patterns.
func (c *Coordinator) Patterns() []wire.PatternInfo {
	return c.tracker.Patterns()
}

func (c *Coordinator) run() {
	defer c.wg.Done()
	defer c.teardown()

	if c.mode == wire.ModeInteractive {
		c.idle.Arm()
	}
	c.publish()

	inbound := c.channel.Inbound()
	for {
		select {
		case <-c.stopchan:
			return
		case <-c.stateEv.Ready():
			c.handleView(c.stateEv.Get())
		case ctrl := <-c.controls:
			c.handleControl(ctrl)
		case <-c.idle.C():
			c.handleIdleExpiry()
		case env, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			c.handleInbound(env)
		}
		c.publish()
	}
}

// handleView processes a dashboard snapshot. Only content changes count as
// activity: a refresh that carries the same visible set and selection keeps
// the idle countdown running.
func (c *Coordinator) handleView(view View) {
	c.view = view
	active := c.detector.Observe(view.Visible, view.Selected)

	switch c.mode {
	case wire.ModeInteractive:
		if active {
			c.idle.Arm()
		}
		c.emitter.EmitInteractive(view)
	case wire.ModeVisualization:
		if active {
			slog.Info("Dashboard activity, returning to interactive mode")
			c.transitionTo(wire.ModeInteractive)
		}
	case wire.ModeOff:
		// Powered off: keep tracking silently, emit nothing.
	}
}

func (c *Coordinator) handleControl(ctrl Control) {
	switch ctrl.Action {
	case ActionSetMode:
		c.setMode(ctrl.Mode)
	case ActionTogglePower:
		if c.mode == wire.ModeOff {
			c.powerOn()
		} else {
			c.powerOff()
		}
	case ActionSetBrightness:
		c.brightness = ctrl.Brightness
		c.emitter.EmitBrightness(ctrl.Brightness)
	case ActionSelectPattern:
		c.emitter.EmitVizControl(wire.VisualizationControl{Command: wire.VizSelect, Pattern: ctrl.Pattern})
	case ActionSetDuration:
		c.emitter.EmitVizControl(wire.VisualizationControl{Command: wire.VizSetDuration, Duration: ctrl.Duration})
	case ActionGetStatus:
		c.emitter.EmitVizControl(wire.VisualizationControl{Command: wire.VizGetStatus})
	}
}

// setMode handles a manual mode request. Requesting the current mode is a
// no-op: nothing is emitted and the timer keeps running.
func (c *Coordinator) setMode(mode wire.Mode) {
	if mode == c.mode {
		return
	}
	if mode == wire.ModeOff {
		c.powerOff()
		return
	}
	c.detector.Reset()
	c.transitionTo(mode)
}

func (c *Coordinator) powerOff() {
	if c.mode != wire.ModeOff {
		c.lastActiveMode = c.mode
	}
	c.mode = wire.ModeOff
	c.idle.Cancel()
	c.detector.Reset()
	c.emitter.EmitMode(wire.ModeOff, View{})
	slog.Info("LEDs powered off", "last_active", c.lastActiveMode)
}

func (c *Coordinator) powerOn() {
	mode := c.lastActiveMode
	if mode == "" || mode == wire.ModeOff {
		mode = wire.ModeInteractive
	}
	c.detector.Reset()
	c.transitionTo(mode)
}

// transitionTo performs the actual switch, emitting exactly one combined
// set_mode message. Entries ride along only into interactive, so the
// hardware is never put in a mode with nothing to show.
func (c *Coordinator) transitionTo(mode wire.Mode) {
	c.mode = mode
	c.lastActiveMode = mode
	switch mode {
	case wire.ModeInteractive:
		c.idle.Arm()
		c.emitter.EmitMode(wire.ModeInteractive, c.view)
	case wire.ModeVisualization:
		c.idle.Cancel()
		c.emitter.EmitMode(wire.ModeVisualization, View{})
		c.emitter.EmitVizControl(wire.VisualizationControl{Command: wire.VizGetStatus})
	}
	slog.Info("Mode changed", "mode", mode)
}

// handleIdleExpiry runs when the inactivity timer fires. The mode is checked
// again here: a fire that raced a transition in the same select round must
// not act on a non-interactive state.
func (c *Coordinator) handleIdleExpiry() {
	c.idle.Cancel()
	if c.mode != wire.ModeInteractive {
		return
	}
	slog.Info("Inactivity timeout, starting visualization")
	c.transitionTo(wire.ModeVisualization)
}

func (c *Coordinator) handleInbound(env wire.Envelope) {
	switch env.Type {
	case wire.TypeLEDStatus:
		var status wire.LEDStatus
		if err := env.Decode(&status); err != nil {
			slog.Warn("Dropping malformed led_status", "error", err)
			return
		}
		c.reconcile(status)
	case wire.TypeVisualizationStatus:
		var status wire.VisualizationStatus
		if err := env.Decode(&status); err != nil {
			slog.Warn("Dropping malformed visualization_status", "error", err)
			return
		}
		c.tracker.Absorb(status, c.clock.Now())
		if c.onEvent != nil {
			c.onEvent(env)
		}
	default:
		slog.Debug("Ignoring hardware message", "type", env.Type)
	}
}

// reconcile adopts the hardware's authoritative report of its own mode,
// healing drift after a hardware restart or reconnect. Nothing is emitted
// from here; only the local cache and the timer adjust.
func (c *Coordinator) reconcile(status wire.LEDStatus) {
	c.tracker.AbsorbInfo(status.Visualization, c.clock.Now())

	if !status.CurrentMode.Valid() {
		slog.Warn("Ignoring led_status with unknown mode", "mode", status.CurrentMode)
		return
	}
	if status.CurrentMode == c.mode {
		return
	}

	slog.Info("Reconciling mode to hardware report", "local", c.mode, "hardware", status.CurrentMode)
	c.mode = status.CurrentMode
	switch status.CurrentMode {
	case wire.ModeInteractive:
		c.lastActiveMode = wire.ModeInteractive
		c.idle.Arm()
	case wire.ModeVisualization:
		c.lastActiveMode = wire.ModeVisualization
		c.idle.Cancel()
	case wire.ModeOff:
		// lastActiveMode keeps the mode to resume on power-on.
		c.idle.Cancel()
	}
}

func (c *Coordinator) publish() {
	st := Status{
		Mode:           c.mode,
		LastActiveMode: c.lastActiveMode,
		Brightness:     c.brightness,
		Connected:      c.channel.Connected(),
	}
	if c.mode == wire.ModeVisualization {
		st.Visualization = c.tracker.Current()
	}

	c.statusMu.Lock()
	changed := !c.published.equal(st)
	c.published = st
	c.statusMu.Unlock()

	if changed && c.onStatus != nil {
		c.onStatus(st)
	}
}

// teardown blanks the hardware on shutdown. clear_all implies mode off on
// the controller side, so a running visualization stops animating.
func (c *Coordinator) teardown() {
	c.idle.Cancel()
	c.emitter.EmitClearAll()
	slog.Info("Coordinator stopped")
}
