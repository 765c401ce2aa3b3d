package tui

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rivo/tview"
	"golang.org/x/exp/maps"

	"github.com/loganrhyne/ledcoord/config"
	"github.com/loganrhyne/ledcoord/coordinator"
	"github.com/loganrhyne/ledcoord/journal"
	"github.com/loganrhyne/ledcoord/logging"
	"github.com/loganrhyne/ledcoord/wire"
)

// TUI is the terminal front end of the simulation. The strip pane renders
// the engine's pixel frames, the keyboard plays the dashboard's role:
// digits select entries, f cycles the type filter, and the mode keys issue
// the same control requests a dashboard would send.
type TUI struct {
	conf     *config.Config
	coord    *coordinator.Coordinator
	engine   *Engine
	ossignal chan os.Signal

	app          *tview.Application
	intro        *tview.TextView
	strip        *tview.TextView
	logView      *tview.TextView
	readyChan    chan bool
	logFlushOnce sync.Once

	mu         sync.Mutex
	running    bool
	status     coordinator.Status
	entries    []journal.Entry
	filters    []string
	filter     int
	selected   string
	slotline   string
	chartoslot map[string]string
}

// NewTUI builds the terminal UI over the given demo collection and
// registers its hooks on the coordinator and the engine, so it must be
// called before either starts.
func NewTUI(conf *config.Config, coord *coordinator.Coordinator, engine *Engine, entries []journal.Entry, ossignal chan os.Signal) *TUI {
	typeset := make(map[string]bool)
	for _, e := range entries {
		typeset[e.Type] = true
	}
	types := maps.Keys(typeset)
	sort.Strings(types)

	ui := &TUI{
		conf:      conf,
		coord:     coord,
		engine:    engine,
		ossignal:  ossignal,
		readyChan: make(chan bool),
		entries:   entries,
		filters:   append([]string{""}, types...),
	}
	coord.OnStatus(ui.statusChanged)
	engine.OnFrame(ui.renderFrame)
	return ui
}

// Ready is closed after the first draw, once the log pane has taken over
// the log output.
func (ui *TUI) Ready() <-chan bool {
	return ui.readyChan
}

func (ui *TUI) Start() error {
	ui.buildLayout()

	ui.mu.Lock()
	ui.submitLocked()
	ui.mu.Unlock()

	go func() {
		if err := ui.app.Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
			ui.ossignal <- os.Interrupt
		}
	}()
	return nil
}

func (ui *TUI) Stop() {
	ui.mu.Lock()
	ui.running = false
	ui.mu.Unlock()
	if ui.app != nil {
		ui.app.Stop()
	}
}

func (ui *TUI) buildLayout() {
	ui.app = tview.NewApplication()

	ui.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	ui.intro.SetBorder(true).SetTitle(" LED Coordinator Simulation ").SetTitleColor(tcell.ColorLightBlue)
	ui.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	ui.strip = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.strip.SetBorder(true)
	ui.strip.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	ui.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			ui.logView.ScrollToEnd()
			ui.app.Draw()
		})
	ui.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	ui.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.intro, 6, 0, false).
		AddItem(ui.strip, 6, 0, false).
		AddItem(ui.logView, 0, 1, true)

	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		ui.logFlushOnce.Do(func() {
			logging.SetOutput(tview.ANSIWriter(ui.logView))
			ui.mu.Lock()
			ui.running = true
			ui.status = ui.coord.Status()
			text := ui.introTextLocked()
			ui.mu.Unlock()
			ui.intro.SetText(text)
			close(ui.readyChan)
		})
	})

	ui.app.SetInputCapture(ui.handleKey)
	ui.app.SetRoot(layout, true)
}

func (ui *TUI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyCtrlC:
		ui.app.Stop()
		ui.ossignal <- os.Interrupt
		return nil
	case tcell.KeyRune:
		key := string(event.Rune())
		ui.mu.Lock()
		uuid, isSlot := ui.chartoslot[key]
		ui.mu.Unlock()
		if isSlot {
			ui.selectEntry(uuid)
			return nil
		}
		switch key {
		case "0":
			ui.selectEntry("")
			return nil
		case "f", "F":
			ui.cycleFilter()
			return nil
		case "i", "I":
			ui.do(coordinator.Control{Action: coordinator.ActionSetMode, Mode: wire.ModeInteractive})
			return nil
		case "v", "V":
			ui.do(coordinator.Control{Action: coordinator.ActionSetMode, Mode: wire.ModeVisualization})
			return nil
		case "o", "O":
			ui.do(coordinator.Control{Action: coordinator.ActionTogglePower})
			return nil
		case "p", "P":
			ui.nextPattern()
			return nil
		case "+":
			ui.adjustBrightness(0.1)
			return nil
		case "-":
			ui.adjustBrightness(-0.1)
			return nil
		case "q", "Q":
			ui.ossignal <- os.Interrupt
			return nil
		case "r", "R":
			ui.ossignal <- syscall.SIGHUP
			return nil
		}
	case tcell.KeyUp:
		row, col := ui.logView.GetScrollOffset()
		ui.logView.ScrollTo(row-1, col)
		return nil
	case tcell.KeyDown:
		row, col := ui.logView.GetScrollOffset()
		ui.logView.ScrollTo(row+1, col)
		return nil
	}
	return event
}

func (ui *TUI) do(ctrl coordinator.Control) {
	if err := ui.coord.Do(ctrl); err != nil {
		slog.Warn("Control rejected", "action", ctrl.Action, "error", err)
	}
}

// selectEntry updates the simulated dashboard selection. Hitting the digit
// of the already selected entry clears the selection again.
func (ui *TUI) selectEntry(uuid string) {
	ui.mu.Lock()
	if uuid != "" && uuid == ui.selected {
		uuid = ""
	}
	ui.selected = uuid
	ui.submitLocked()
	text := ui.introTextLocked()
	ui.mu.Unlock()
	ui.intro.SetText(text)
}

func (ui *TUI) cycleFilter() {
	ui.mu.Lock()
	ui.filter = (ui.filter + 1) % len(ui.filters)
	visible := ui.visibleLocked()
	stillVisible := false
	for _, e := range visible {
		if e.UUID == ui.selected {
			stillVisible = true
			break
		}
	}
	if !stillVisible {
		ui.selected = ""
	}
	ui.submitLocked()
	text := ui.introTextLocked()
	ui.mu.Unlock()
	ui.intro.SetText(text)
}

func (ui *TUI) nextPattern() {
	patterns := ui.coord.Patterns()
	if len(patterns) == 0 {
		return
	}
	st := ui.coord.Status()
	next := 0
	if st.Visualization != nil {
		for i, p := range patterns {
			if p.ID == st.Visualization.Pattern {
				next = (i + 1) % len(patterns)
				break
			}
		}
	}
	ui.do(coordinator.Control{Action: coordinator.ActionSelectPattern, Pattern: patterns[next].ID})
}

func (ui *TUI) adjustBrightness(delta float64) {
	st := ui.coord.Status()
	target := math.Round((st.Brightness+delta)*10) / 10
	target = math.Min(math.Max(target, 0), 1)
	ui.do(coordinator.Control{Action: coordinator.ActionSetBrightness, Brightness: target})
}

// submitLocked pushes the simulated dashboard state through the same intake
// a real dashboard uses.
func (ui *TUI) submitLocked() {
	visible := ui.visibleLocked()
	uuids := make([]string, len(visible))
	for i, e := range visible {
		uuids[i] = e.UUID
	}
	ui.coord.SubmitState(wire.StateUpdate{
		AllEntries:   ui.entries,
		VisibleUUIDs: uuids,
		SelectedUUID: ui.selected,
	})
	ui.rebuildSlotsLocked(visible)
}

func (ui *TUI) visibleLocked() []journal.Entry {
	want := ui.filters[ui.filter]
	if want == "" {
		return ui.entries
	}
	var visible []journal.Entry
	for _, e := range ui.entries {
		if e.Type == want {
			visible = append(visible, e)
		}
	}
	return visible
}

// rebuildSlotsLocked re-derives the key-to-entry mapping and the ruler line
// under the strip: the first nine visible entries get the digits 1 to 9 at
// their slot positions.
func (ui *TUI) rebuildSlotsLocked(visible []journal.Entry) {
	slots := journal.Slots(ui.entries)
	line := []byte(strings.Repeat(" ", ui.conf.Grid.Pixels))
	ui.chartoslot = make(map[string]string, 9)
	for i, e := range visible {
		if i >= 9 {
			break
		}
		digit := fmt.Sprintf("%d", i+1)
		ui.chartoslot[digit] = e.UUID
		if idx, ok := slots[e.UUID]; ok && idx < len(line) {
			line[idx] = digit[0]
		}
	}
	ui.slotline = string(line)
}

func (ui *TUI) filterNameLocked() string {
	if ui.filters[ui.filter] == "" {
		return "all"
	}
	return ui.filters[ui.filter]
}

// introTextLocked generates the dynamic text for the top info pane.
func (ui *TUI) introTextLocked() string {
	st := ui.status
	line1 := fmt.Sprintf("Mode: [#ffff00]%-13s[white] | Brightness: [#ffff00]%.2f[white] | Filter: [#ffff00]%s[white]",
		string(st.Mode), st.Brightness, ui.filterNameLocked())
	if st.Mode == wire.ModeVisualization && st.Visualization != nil {
		line1 += fmt.Sprintf(" | Pattern: [#ffff00]%s[white] (%.0fs)",
			st.Visualization.Pattern, st.Visualization.TimeRemaining)
	}
	line2 := "Hit [blue]1[-]...[blue]9[-] to select an entry, [blue]0[-] to clear the selection, [#ff0000]f[-] to cycle the type filter"
	line3 := "Hit [#ff0000]i[-]/[#ff0000]v[-]/[#ff0000]o[-] to switch mode, [#ff0000]p[-] for the next pattern, [#ff0000]+[-]/[#ff0000]-[-] for brightness"
	line4 := "Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload, [#ff0000]Up/Down[-] to scroll logs"
	return fmt.Sprintf("%s\n%s\n%s\n%s", line1, line2, line3, line4)
}

// statusChanged is the coordinator's status hook. It runs on the
// coordinator loop, so the actual drawing is queued onto the TUI thread.
func (ui *TUI) statusChanged(st coordinator.Status) {
	ui.mu.Lock()
	ui.status = st
	text := ui.introTextLocked()
	running := ui.running
	ui.mu.Unlock()
	if !running {
		return
	}
	ui.app.QueueUpdateDraw(func() { ui.intro.SetText(text) })
}

// renderFrame is the engine's frame hook.
func (ui *TUI) renderFrame(frame []colorful.Color) {
	ui.mu.Lock()
	running := ui.running
	slotline := ui.slotline
	ui.mu.Unlock()
	if !running {
		return
	}
	text := stripText(frame, slotline)
	ui.app.QueueUpdateDraw(func() { ui.strip.SetText(text) })
}

var blockRamp = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// stripText renders a frame as two rows of block characters. The bottom row
// fills first, the top row continues for the brighter half, and the ruler
// line with the selection digits sits below.
func stripText(frame []colorful.Color, slotline string) string {
	var top, bottom strings.Builder
	for _, c := range frame {
		lum := (c.R + c.G + c.B) / 3
		level := int(math.Round(lum * 16))
		if level <= 0 {
			top.WriteString(" ")
			bottom.WriteString(" ")
			continue
		}
		level = min(level, 16)
		tag := scaledColor(c)
		if level <= 8 {
			top.WriteString(" ")
			bottom.WriteString(tag + blockRamp[level] + "[-]")
		} else {
			top.WriteString(tag + blockRamp[level-8] + "[-]")
			bottom.WriteString(tag + "█[-]")
		}
	}
	return " " + top.String() + "\n " + bottom.String() + "\n\n [blue]" + slotline + "[-]"
}

// scaledColor maps a possibly dim color to a fully saturated terminal color
// tag. The dimming shows in the block height instead, which reads much
// better on a dark terminal than dimming the glyph color.
func scaledColor(c colorful.Color) string {
	maxc := math.Max(c.R, math.Max(c.G, c.B))
	if maxc <= 0 {
		return "[#000000]"
	}
	factor := 1 / maxc
	r := byte(math.Round(math.Min(c.R*factor, 1) * 255))
	g := byte(math.Round(math.Min(c.G*factor, 1) * 255))
	b := byte(math.Round(math.Min(c.B*factor, 1) * 255))
	return fmt.Sprintf("[#%02x%02x%02x]", r, g, b)
}
