// Package server is the dashboard-facing side of the service: a small HTTP
// API plus a websocket endpoint that carries dashboard state updates and
// manual commands in and coordinator status broadcasts out.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loganrhyne/ledcoord/config"
	"github.com/loganrhyne/ledcoord/coordinator"
	"github.com/loganrhyne/ledcoord/wire"
)

const (
	// Time allowed to write a message to a dashboard client.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from a client.
	pongWait = 60 * time.Second

	// Send pings to clients with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// A state_update carries the whole journal collection, so the read
	// limit is far larger than the command frames need.
	maxMessageSize = 1 << 20

	// Per-client send buffer. A client that falls further behind than
	// this misses frames and catches up on the next status change.
	sendBuffer = 16
)

// client is one connected dashboard websocket.
type client struct {
	conn *websocket.Conn
	send chan wire.Envelope
}

// Server hosts the dashboard API and websocket endpoint.
type Server struct {
	cfg   config.ServerConfig
	coord *coordinator.Coordinator

	mux      *http.ServeMux
	httpsrv  *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	wg sync.WaitGroup
}

// New builds the server and registers its broadcast hooks on the
// coordinator, so it must be called before the coordinator starts.
func New(cfg config.ServerConfig, cfile string, coord *coordinator.Coordinator) *Server {
	s := &Server{
		cfg:     cfg,
		coord:   coord,
		mux:     http.NewServeMux(),
		clients: make(map[*client]struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/config", config.ConfigHandler(cfile))
	s.mux.HandleFunc("/ws", s.handleWS)

	coord.OnStatus(s.broadcastStatus)
	coord.OnEvent(s.broadcast)
	return s
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("can't listen on %s: %w", s.cfg.Listen, err)
	}
	s.listener = ln
	s.httpsrv = &http.Server{Handler: s.mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpsrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Dashboard server failed", "error", err)
		}
	}()
	slog.Info("Dashboard server listening", "addr", ln.Addr())
	return nil
}

// Addr returns the bound address. Useful together with a ":0" listen
// config.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and drops every connected client.
func (s *Server) Stop() {
	if s.httpsrv != nil {
		s.httpsrv.Close()
	}
	// Close does not touch hijacked connections, so the websockets are
	// closed by hand. Their read pumps error out and unregister.
	s.mu.Lock()
	s.closed = true
	for cl := range s.clients {
		cl.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowedOrigin == "" || s.cfg.AllowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == s.cfg.AllowedOrigin
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.coord.Status()); err != nil {
		slog.Error("Failed to encode status to JSON", "error", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Dashboard websocket upgrade failed", "error", err)
		return
	}

	cl := &client{conn: conn, send: make(chan wire.Envelope, sendBuffer)}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[cl] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()
	slog.Info("Dashboard client connected", "remote", conn.RemoteAddr(), "clients", count)

	s.wg.Add(1)
	go s.writePump(cl)

	s.readPump(cl)

	s.mu.Lock()
	delete(s.clients, cl)
	count = len(s.clients)
	s.mu.Unlock()
	close(cl.send)
	conn.Close()
	slog.Info("Dashboard client disconnected", "remote", conn.RemoteAddr(), "clients", count)
}

// readPump reads dashboard messages until the connection dies. It runs on
// the connection's handler goroutine.
func (s *Server) readPump(cl *client) {
	conn := cl.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env wire.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			slog.Warn("Dropping malformed dashboard message", "error", err)
			s.sendError(cl, "malformed message")
			continue
		}
		s.dispatch(cl, env)
	}
}

// writePump forwards queued envelopes to the client and keeps the
// connection alive with pings.
func (s *Server) writePump(cl *client) {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one decoded envelope to the coordinator. Rejected
// requests are answered with an error envelope on the requesting client
// only.
func (s *Server) dispatch(cl *client, env wire.Envelope) {
	switch env.Type {
	case wire.TypeStateUpdate:
		var upd wire.StateUpdate
		if err := env.Decode(&upd); err != nil {
			slog.Warn("Dropping malformed state_update", "error", err)
			s.sendError(cl, "malformed state_update")
			return
		}
		s.coord.SubmitState(upd)
	case wire.TypeLEDCommand:
		var cmd wire.LEDCommand
		if err := env.Decode(&cmd); err != nil {
			slog.Warn("Dropping malformed led_command", "error", err)
			s.sendError(cl, "malformed led_command")
			return
		}
		if err := s.runCommand(cmd); err != nil {
			slog.Warn("Rejected led_command", "action", cmd.Action, "error", err)
			s.sendError(cl, err.Error())
		}
	case wire.TypeVisualizationControl:
		var vc wire.VisualizationControl
		if err := env.Decode(&vc); err != nil {
			slog.Warn("Dropping malformed visualization_control", "error", err)
			s.sendError(cl, "malformed visualization_control")
			return
		}
		if err := s.runVizControl(vc); err != nil {
			slog.Warn("Rejected visualization_control", "command", vc.Command, "error", err)
			s.sendError(cl, err.Error())
		}
	default:
		slog.Debug("Ignoring dashboard message", "type", env.Type)
	}
}

func (s *Server) runCommand(cmd wire.LEDCommand) error {
	switch cmd.Action {
	case "set_mode":
		return s.coord.Do(coordinator.Control{Action: coordinator.ActionSetMode, Mode: cmd.Mode})
	case "toggle_power":
		return s.coord.Do(coordinator.Control{Action: coordinator.ActionTogglePower})
	case "set_brightness":
		if cmd.Brightness == nil {
			return errors.New("set_brightness needs a brightness value")
		}
		return s.coord.Do(coordinator.Control{Action: coordinator.ActionSetBrightness, Brightness: *cmd.Brightness})
	default:
		return fmt.Errorf("unknown led_command action %q", cmd.Action)
	}
}

func (s *Server) runVizControl(vc wire.VisualizationControl) error {
	switch vc.Command {
	case wire.VizSelect:
		return s.coord.Do(coordinator.Control{Action: coordinator.ActionSelectPattern, Pattern: vc.Pattern})
	case wire.VizSetDuration:
		return s.coord.Do(coordinator.Control{Action: coordinator.ActionSetDuration, Duration: vc.Duration})
	case wire.VizGetStatus:
		return s.coord.Do(coordinator.Control{Action: coordinator.ActionGetStatus})
	default:
		return fmt.Errorf("unknown visualization command %q", vc.Command)
	}
}

func (s *Server) sendError(cl *client, msg string) {
	env, err := wire.NewEnvelope(wire.TypeError, wire.Error{Message: msg})
	if err != nil {
		return
	}
	select {
	case cl.send <- env:
	default:
	}
}

// broadcastStatus relays a coordinator status change to the dashboards as
// a led_status frame, mirroring what the hardware reports on its side.
func (s *Server) broadcastStatus(st coordinator.Status) {
	env, err := wire.NewEnvelope(wire.TypeLEDStatus, wire.LEDStatus{
		CurrentMode:   st.Mode,
		Visualization: st.Visualization,
	})
	if err != nil {
		return
	}
	s.broadcast(env)
}

// broadcast fans an envelope out to every client without ever blocking the
// caller. It runs on the coordinator loop, so a slow client loses frames
// instead of stalling the state machine.
func (s *Server) broadcast(env wire.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cl := range s.clients {
		select {
		case cl.send <- env:
		default:
			slog.Debug("Dropping frame for slow dashboard client")
		}
	}
}
