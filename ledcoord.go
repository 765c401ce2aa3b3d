// ledcoord sits between a geotagged journal dashboard and a 150 pixel LED
// installation. It keeps the strip's mode in sync with what the dashboard
// shows, falls back to ambient visualizations when nobody is browsing, and
// reconciles against whatever the hardware reports about itself.
//
// With -sim the hardware link and the dashboard are both simulated in a
// terminal UI.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/loganrhyne/ledcoord/config"
	"github.com/loganrhyne/ledcoord/coordinator"
	"github.com/loganrhyne/ledcoord/journal"
	"github.com/loganrhyne/ledcoord/logging"
	"github.com/loganrhyne/ledcoord/server"
	"github.com/loganrhyne/ledcoord/transport"
	"github.com/loganrhyne/ledcoord/tui"
)

// App bundles the subsystems of one service incarnation. A config reload
// tears the whole thing down and builds a fresh one.
type App struct {
	conf     *config.Config
	coord    *coordinator.Coordinator
	channel  transport.Channel
	dimmer   *coordinator.NightDimmer
	srv      *server.Server
	engine   *tui.Engine
	ui       *tui.TUI
	ossignal chan os.Signal
}

func NewApp(ossignal chan os.Signal) *App {
	return &App{ossignal: ossignal}
}

// initialise builds the subsystems for the given config without starting
// anything. In simulation mode the hardware link is the in-process engine
// and the dashboard is played by the terminal UI; otherwise the websocket
// link and the dashboard server are real.
func (a *App) initialise(conf *config.Config) error {
	a.conf = conf
	clock := clockwork.NewRealClock()

	palette, err := journal.NewPalette(conf.Palette)
	if err != nil {
		return err
	}

	if conf.SimMode {
		a.engine = tui.NewEngine(conf, clock)
		a.channel = a.engine
	} else {
		if conf.Hardware.URL == "" {
			return fmt.Errorf("Hardware.URL must be set when not running in simulation mode")
		}
		a.channel = transport.NewWSChannel(conf.Hardware)
	}

	a.coord = coordinator.New(conf.Coordinator, palette, a.channel, clock)

	if conf.SimMode {
		entries := journal.DemoCollection(conf.Sim.Entries)
		a.ui = tui.NewTUI(conf, a.coord, a.engine, entries, a.ossignal)
	} else {
		a.srv = server.New(conf.Server, conf.Configfile, a.coord)
	}

	a.dimmer = coordinator.NewNightDimmer(conf.NightDim, conf.Coordinator.DefaultBrightness, clock, func(ctrl coordinator.Control) {
		if err := a.coord.Do(ctrl); err != nil {
			slog.Warn("Night dimming request rejected", "error", err)
		}
	})
	return nil
}

func (a *App) Start(conf *config.Config) error {
	if err := a.initialise(conf); err != nil {
		return err
	}
	if err := a.channel.Start(); err != nil {
		return err
	}
	a.coord.Start()
	if a.srv != nil {
		if err := a.srv.Start(); err != nil {
			a.coord.Stop()
			a.channel.Stop()
			return err
		}
	}
	if a.ui != nil {
		if err := a.ui.Start(); err != nil {
			a.coord.Stop()
			a.channel.Stop()
			return err
		}
	}
	a.dimmer.Start()
	slog.Info("LED coordinator started", "sim", conf.SimMode)
	return nil
}

// Stop tears the subsystems down. The coordinator stops before the channel
// so its shutdown clear_all still reaches the hardware, and the TUI goes
// last so everything can still draw while winding down.
func (a *App) Stop() {
	if a.dimmer != nil {
		a.dimmer.Stop()
	}
	if a.srv != nil {
		a.srv.Stop()
	}
	if a.coord != nil {
		a.coord.Stop()
	}
	if a.channel != nil {
		a.channel.Stop()
	}
	if a.ui != nil {
		a.ui.Stop()
	}
	slog.Info("LED coordinator stopped")
}

func main() {
	cfile := flag.String("config", config.CONFILE, "Path to the config file")
	sim := flag.Bool("sim", false, "Run the simulation TUI instead of the real hardware link")
	flag.Parse()

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	var stopWatch func()
	for {
		conf, err := config.ReadConfig(*cfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
		conf.SimMode = *sim

		prof := conf.Logging.HW
		buffered := false
		if conf.SimMode {
			prof = conf.Logging.TUI
			buffered = true
		}
		if err := logging.Init(buffered, prof.Level, prof.Format, prof.File, prof.MaxSizeMB, prof.MaxBackups); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
			os.Exit(1)
		}
		if !conf.SimMode {
			// The TUI attaches the log pane later; headless runs log to stderr.
			logging.SetOutput(os.Stderr)
		}

		app := NewApp(ossignal)
		if err := app.Start(conf); err != nil {
			slog.Error("Failed to start", "error", err)
			logging.Close()
			os.Exit(1)
		}

		if stopWatch == nil {
			stopWatch, err = config.WatchFile(*cfile, func() {
				select {
				case ossignal <- syscall.SIGHUP:
				default:
				}
			})
			if err != nil {
				slog.Warn("Config file watching disabled", "error", err)
				stopWatch = func() {}
			}
		}

		sig := <-ossignal
		slog.Info("Received signal", "signal", sig.String())
		app.Stop()
		logging.Close()
		if sig != syscall.SIGHUP {
			break
		}
	}
	if stopWatch != nil {
		stopWatch()
	}
}
