package main

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/loganrhyne/ledcoord/config"
	"github.com/loganrhyne/ledcoord/coordinator"
	"github.com/loganrhyne/ledcoord/journal"
	"github.com/loganrhyne/ledcoord/wire"
)

type MockChannel struct {
	mu      sync.Mutex
	sent    []wire.Envelope
	started int
	stopped int
	inbound chan wire.Envelope
}

func NewMockChannel() *MockChannel {
	return &MockChannel{inbound: make(chan wire.Envelope, 16)}
}

func (m *MockChannel) Start() error {
	m.mu.Lock()
	m.started++
	m.mu.Unlock()
	return nil
}

func (m *MockChannel) Stop() {
	m.mu.Lock()
	m.stopped++
	m.mu.Unlock()
}

func (m *MockChannel) Send(msgType string, data any) error {
	env, err := wire.NewEnvelope(msgType, data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sent = append(m.sent, env)
	m.mu.Unlock()
	return nil
}

func (m *MockChannel) Connected() bool { return true }

func (m *MockChannel) Inbound() <-chan wire.Envelope { return m.inbound }

func (m *MockChannel) countOfType(msgType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, env := range m.sent {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

func (m *MockChannel) stopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func testConfig() *config.Config {
	conf := &config.Config{}
	conf.Grid.Pixels = 150
	conf.Coordinator.InactivityTimeout = 15 * time.Minute
	conf.Coordinator.DefaultBrightness = 0.8
	conf.Coordinator.SelectedLevel = 1.0
	conf.Coordinator.UnselectedLevel = 0.3
	conf.Server.Listen = "127.0.0.1:0"
	// Nothing listens on this port; the link keeps retrying in the
	// background, which is exactly what a missing controller looks like.
	conf.Hardware.URL = "ws://127.0.0.1:1/ws"
	conf.Hardware.ReconnectMin = 10 * time.Millisecond
	conf.Hardware.ReconnectMax = 50 * time.Millisecond
	conf.Hardware.PingInterval = time.Second
	conf.Hardware.WriteTimeout = time.Second
	conf.Hardware.QueueSize = 8
	return conf
}

func TestAppStartStop(t *testing.T) {
	ossignal := make(chan os.Signal, 1)
	app := NewApp(ossignal)

	if err := app.Start(testConfig()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Allow time for the coordinator loop to publish its first status.
	deadline := time.Now().Add(time.Second)
	for app.coord.Status().Mode != wire.ModeInteractive {
		if time.Now().After(deadline) {
			t.Fatalf("Expected initial mode interactive, got %s", app.coord.Status().Mode)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if app.srv == nil || app.srv.Addr() == "" {
		t.Error("Expected the dashboard server to be listening")
	}

	app.Stop()
}

func TestAppRequiresHardwareURL(t *testing.T) {
	ossignal := make(chan os.Signal, 1)
	app := NewApp(ossignal)
	conf := testConfig()
	conf.Hardware.URL = ""

	if err := app.Start(conf); err == nil {
		app.Stop()
		t.Fatal("Expected Start to fail without a hardware URL")
	}
}

func TestAppStopSendsClearAll(t *testing.T) {
	ossignal := make(chan os.Signal, 1)
	app := NewApp(ossignal)
	conf := testConfig()
	app.conf = conf

	palette, err := journal.NewPalette(nil)
	if err != nil {
		t.Fatalf("Palette setup failed: %v", err)
	}
	mock := NewMockChannel()
	app.channel = mock
	app.coord = coordinator.New(conf.Coordinator, palette, mock, clockwork.NewRealClock())
	app.dimmer = coordinator.NewNightDimmer(conf.NightDim, conf.Coordinator.DefaultBrightness, clockwork.NewRealClock(), func(coordinator.Control) {})

	app.coord.Start()
	app.Stop()

	if got := mock.countOfType(wire.TypeClearAll); got != 1 {
		t.Errorf("Expected exactly one clear_all on shutdown, got %d", got)
	}
	if got := mock.stopCalls(); got != 1 {
		t.Errorf("Expected the channel to be stopped once, got %d", got)
	}
}
