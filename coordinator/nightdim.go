package coordinator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nathan-osman/go-sunrise"

	"github.com/loganrhyne/ledcoord/config"
)

// NightDimmer lowers the output level between sunset and sunrise at the
// installation's coordinates. It submits brightness requests through the
// same control queue as any manual request and never touches coordinator
// state directly.
type NightDimmer struct {
	cfg     config.NightDimConfig
	restore float64
	clock   clockwork.Clock
	submit  func(Control)

	stopchan chan struct{}
	wg       sync.WaitGroup
}

// NewNightDimmer builds the dimmer. restore is the level reapplied at dawn.
func NewNightDimmer(cfg config.NightDimConfig, restore float64, clock clockwork.Clock, submit func(Control)) *NightDimmer {
	return &NightDimmer{
		cfg:      cfg,
		restore:  restore,
		clock:    clock,
		submit:   submit,
		stopchan: make(chan struct{}),
	}
}

// Start launches the schedule goroutine. Does nothing when dimming is
// disabled in the config.
func (d *NightDimmer) Start() {
	if !d.cfg.Enabled {
		return
	}
	d.wg.Add(1)
	go d.run()
}

func (d *NightDimmer) Stop() {
	if !d.cfg.Enabled {
		return
	}
	close(d.stopchan)
	d.wg.Wait()
}

func (d *NightDimmer) run() {
	defer d.wg.Done()
	for {
		now := d.clock.Now()
		next := now.Add(24 * time.Hour)
		rise, set := sunrise.SunriseSunset(d.cfg.Latitude, d.cfg.Longitude, now.Year(), now.Month(), now.Day())
		riseNext, _ := sunrise.SunriseSunset(d.cfg.Latitude, d.cfg.Longitude, next.Year(), next.Month(), next.Day())

		var night bool
		var wait time.Duration
		if now.After(rise) && now.Before(set) {
			// Daytime, next boundary is sunset.
			night = false
			wait = set.Sub(now)
		} else if now.Before(rise) {
			// Night after midnight, next boundary is this day's sunrise.
			night = true
			wait = rise.Sub(now)
		} else {
			// Night before midnight, next boundary is tomorrow's sunrise.
			night = true
			wait = riseNext.Sub(now)
		}

		// Polar latitudes make go-sunrise return zero times; keep the loop
		// from spinning on a non-positive wait.
		if wait < time.Minute {
			wait = time.Minute
		}

		level := d.restore
		if night {
			level = d.cfg.DimBrightness
		}
		slog.Info("Night dimmer applying brightness", "night", night, "level", level, "next_change", wait)
		d.submit(Control{Action: ActionSetBrightness, Brightness: level})

		select {
		case <-d.clock.After(wait):
		case <-d.stopchan:
			return
		}
	}
}
