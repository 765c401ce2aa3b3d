package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganrhyne/ledcoord/config"
	"github.com/loganrhyne/ledcoord/coordinator"
	"github.com/loganrhyne/ledcoord/journal"
	"github.com/loganrhyne/ledcoord/wire"
)

// stubChannel stands in for the hardware link. It records everything the
// coordinator sends and lets tests inject hardware messages.
type stubChannel struct {
	mu      sync.Mutex
	sent    []wire.Envelope
	inbound chan wire.Envelope
}

func newStubChannel() *stubChannel {
	return &stubChannel{inbound: make(chan wire.Envelope, 16)}
}

func (s *stubChannel) Start() error { return nil }
func (s *stubChannel) Stop()        {}

func (s *stubChannel) Send(msgType string, data any) error {
	env, err := wire.NewEnvelope(msgType, data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	return nil
}

func (s *stubChannel) Connected() bool { return true }

func (s *stubChannel) Inbound() <-chan wire.Envelope { return s.inbound }

func (s *stubChannel) countOfType(msgType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, env := range s.sent {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

func (s *stubChannel) lastOfType(msgType string) (wire.Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Type == msgType {
			return s.sent[i], true
		}
	}
	return wire.Envelope{}, false
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	content := `
Grid:
  Pixels: 150
Coordinator:
  InactivityTimeout: 15m
  DefaultBrightness: 0.8
Hardware:
  URL: ws://localhost:8765/ws
Server:
  Listen: 127.0.0.1:0
`
	cfile := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfile, []byte(content), 0o644))
	return cfile
}

func newTestServer(t *testing.T, cfg config.ServerConfig) (*Server, *stubChannel) {
	t.Helper()
	ch := newStubChannel()
	palette, err := journal.NewPalette(nil)
	require.NoError(t, err)
	coord := coordinator.New(config.CoordinatorConfig{
		InactivityTimeout: 15 * time.Minute,
		DefaultBrightness: 0.8,
		SelectedLevel:     1.0,
		UnselectedLevel:   0.3,
	}, palette, ch, clockwork.NewRealClock())

	srv := New(cfg, writeTestConfig(t), coord)
	coord.Start()
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		srv.Stop()
		coord.Stop()
	})
	return srv, ch
}

func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err, "dialing the dashboard websocket should succeed")
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	env, err := wire.NewEnvelope(msgType, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

// readOfType reads frames until one of the wanted type arrives, skipping
// interleaved broadcasts.
func readOfType(t *testing.T, conn *websocket.Conn, msgType string) wire.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env wire.Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for a %s frame", msgType)
		if env.Type == msgType {
			return env
		}
	}
}

func decodeBody(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

func testEntry(uuid, entryType string, day int) journal.Entry {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return journal.Entry{
		UUID:         uuid,
		Type:         entryType,
		CreationDate: base.AddDate(0, 0, day),
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{Listen: "127.0.0.1:0"})

	resp, err := http.Get("http://" + srv.Addr() + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st coordinator.Status
	require.NoError(t, decodeBody(resp, &st))
	assert.Equal(t, wire.ModeInteractive, st.Mode)
	assert.Equal(t, 0.8, st.Brightness)
	assert.True(t, st.Connected)
}

func TestStatusEndpointRejectsPost(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{Listen: "127.0.0.1:0"})

	resp, err := http.Post("http://"+srv.Addr()+"/api/status", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestConfigEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{Listen: "127.0.0.1:0"})

	resp, err := http.Get("http://" + srv.Addr() + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rc config.RuntimeConfig
	require.NoError(t, decodeBody(resp, &rc))
	assert.Equal(t, 0.8, rc.Coordinator.DefaultBrightness)
	assert.Equal(t, 15*time.Minute, rc.Coordinator.InactivityTimeout)
}

func TestStateUpdateReachesHardware(t *testing.T) {
	srv, ch := newTestServer(t, config.ServerConfig{Listen: "127.0.0.1:0"})
	conn := dialWS(t, srv)

	sendEnvelope(t, conn, wire.TypeStateUpdate, wire.StateUpdate{
		AllEntries: []journal.Entry{
			testEntry("uuid-a", "Beach", 0),
			testEntry("uuid-b", "Lake", 1),
		},
		VisibleUUIDs: []string{"uuid-b"},
		SelectedUUID: "uuid-b",
	})

	assert.Eventually(t, func() bool {
		return ch.countOfType(wire.TypeUpdateInteractive) >= 1
	}, 2*time.Second, 10*time.Millisecond, "the state update should reach the hardware link")

	env, ok := ch.lastOfType(wire.TypeUpdateInteractive)
	require.True(t, ok)
	var upd wire.UpdateInteractive
	require.NoError(t, env.Decode(&upd))
	require.Len(t, upd.Entries, 1)
	assert.Equal(t, 1, upd.Entries[0].Index, "the filtered-out entry still occupies slot 0")
	assert.Equal(t, "#00b4c8", upd.Entries[0].Color)
	assert.True(t, upd.Entries[0].IsSelected)
}

func TestCommandBroadcastsStatus(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{Listen: "127.0.0.1:0"})
	conn := dialWS(t, srv)

	sendEnvelope(t, conn, wire.TypeLEDCommand, wire.LEDCommand{Action: "toggle_power"})
	env := readOfType(t, conn, wire.TypeLEDStatus)
	var st wire.LEDStatus
	require.NoError(t, env.Decode(&st))
	assert.Equal(t, wire.ModeOff, st.CurrentMode)

	sendEnvelope(t, conn, wire.TypeLEDCommand, wire.LEDCommand{Action: "toggle_power"})
	env = readOfType(t, conn, wire.TypeLEDStatus)
	require.NoError(t, env.Decode(&st))
	assert.Equal(t, wire.ModeInteractive, st.CurrentMode, "power-on should resume the last active mode")
}

func TestRejectedCommandsGetErrorEnvelope(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{Listen: "127.0.0.1:0"})
	conn := dialWS(t, srv)

	sendEnvelope(t, conn, wire.TypeLEDCommand, wire.LEDCommand{Action: "set_brightness"})
	env := readOfType(t, conn, wire.TypeError)
	var werr wire.Error
	require.NoError(t, env.Decode(&werr))
	assert.Contains(t, werr.Message, "brightness")

	sendEnvelope(t, conn, wire.TypeVisualizationControl, wire.VisualizationControl{
		Command: wire.VizSelect,
		Pattern: "sparkle",
	})
	env = readOfType(t, conn, wire.TypeError)
	require.NoError(t, env.Decode(&werr))
	assert.Contains(t, werr.Message, "sparkle")

	sendEnvelope(t, conn, wire.TypeLEDCommand, wire.LEDCommand{Action: "explode"})
	env = readOfType(t, conn, wire.TypeError)
	require.NoError(t, env.Decode(&werr))
	assert.Contains(t, werr.Message, "unknown led_command action")
}

func TestMalformedFrameGetsError(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{Listen: "127.0.0.1:0"})
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	env := readOfType(t, conn, wire.TypeError)
	var werr wire.Error
	require.NoError(t, env.Decode(&werr))
	assert.Contains(t, werr.Message, "malformed")
}

func TestVisualizationStatusRelay(t *testing.T) {
	srv, ch := newTestServer(t, config.ServerConfig{Listen: "127.0.0.1:0"})
	conn := dialWS(t, srv)

	report, err := wire.NewEnvelope(wire.TypeVisualizationStatus, wire.VisualizationStatus{
		Pattern:       wire.PatternColorWaves,
		Name:          "Color Waves",
		Duration:      300,
		TimeRemaining: 120,
	})
	require.NoError(t, err)
	ch.inbound <- report

	env := readOfType(t, conn, wire.TypeVisualizationStatus)
	var vs wire.VisualizationStatus
	require.NoError(t, env.Decode(&vs))
	assert.Equal(t, wire.PatternColorWaves, vs.Pattern)
	assert.Equal(t, 120.0, vs.TimeRemaining)
}

func TestOriginEnforcement(t *testing.T) {
	srv, _ := newTestServer(t, config.ServerConfig{
		Listen:        "127.0.0.1:0",
		AllowedOrigin: "http://dash.example",
	})
	url := "ws://" + srv.Addr() + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{
		"Origin": []string{"http://evil.example"},
	})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	if resp != nil {
		resp.Body.Close()
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{
		"Origin": []string{"http://dash.example"},
	})
	require.NoError(t, err, "the allowed origin should pass the handshake")
	conn.Close()

	conn, _, err = websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "non-browser clients without an Origin header should pass")
	conn.Close()
}
