package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

const CONFILE = "config.yml"

// Config is the full service configuration read from the yaml config file.
// SimMode and Configfile are runtime state set by main, not file content.
type Config struct {
	SimMode    bool   `yaml:"-" json:"-"`
	Configfile string `yaml:"-" json:"-"`

	Grid        GridConfig        `yaml:"Grid" json:"Grid"`
	Coordinator CoordinatorConfig `yaml:"Coordinator" json:"Coordinator"`
	Palette     map[string]string `yaml:"Palette" json:"Palette"`
	Hardware    HardwareConfig    `yaml:"Hardware" json:"Hardware"`
	Server      ServerConfig      `yaml:"Server" json:"Server"`
	NightDim    NightDimConfig    `yaml:"NightDim" json:"NightDim"`
	Logging     LoggingConfig     `yaml:"Logging" json:"Logging"`
	Sim         SimConfig         `yaml:"Sim" json:"Sim"`
}

// GridConfig describes the physical strip.
type GridConfig struct {
	Pixels int `yaml:"Pixels" json:"Pixels"`
}

// CoordinatorConfig holds the mode state machine tunables. SelectedLevel and
// UnselectedLevel are the brightness split between the selected entry and
// the rest of the visible set.
type CoordinatorConfig struct {
	InactivityTimeout time.Duration `yaml:"InactivityTimeout" json:"InactivityTimeout"`
	DefaultBrightness float64       `yaml:"DefaultBrightness" json:"DefaultBrightness"`
	SelectedLevel     float64       `yaml:"SelectedLevel" json:"SelectedLevel"`
	UnselectedLevel   float64       `yaml:"UnselectedLevel" json:"UnselectedLevel"`
}

// HardwareConfig describes the websocket link to the LED hardware
// controller.
type HardwareConfig struct {
	URL          string        `yaml:"URL" json:"URL"`
	ReconnectMin time.Duration `yaml:"ReconnectMin" json:"ReconnectMin"`
	ReconnectMax time.Duration `yaml:"ReconnectMax" json:"ReconnectMax"`
	PingInterval time.Duration `yaml:"PingInterval" json:"PingInterval"`
	WriteTimeout time.Duration `yaml:"WriteTimeout" json:"WriteTimeout"`
	QueueSize    int           `yaml:"QueueSize" json:"QueueSize"`
}

// ServerConfig describes the dashboard-facing HTTP listener.
type ServerConfig struct {
	Listen        string `yaml:"Listen" json:"Listen"`
	AllowedOrigin string `yaml:"AllowedOrigin" json:"AllowedOrigin"`
}

// NightDimConfig enables automatic brightness dimming between sunset and
// sunrise at the installation's coordinates.
type NightDimConfig struct {
	Enabled       bool    `yaml:"Enabled" json:"Enabled"`
	Latitude      float64 `yaml:"Latitude" json:"Latitude"`
	Longitude     float64 `yaml:"Longitude" json:"Longitude"`
	DimBrightness float64 `yaml:"DimBrightness" json:"DimBrightness"`
}

// LogProfile configures one logging flavor. File is optional; when set,
// output additionally goes to a rotating file capped at MaxSizeMB per file
// with MaxBackups old files kept.
type LogProfile struct {
	Level      string `yaml:"Level" json:"Level"`
	Format     string `yaml:"Format" json:"Format"`
	File       string `yaml:"File" json:"File"`
	MaxSizeMB  int    `yaml:"MaxSizeMB" json:"MaxSizeMB"`
	MaxBackups int    `yaml:"MaxBackups" json:"MaxBackups"`
}

// LoggingConfig holds the two logging profiles: TUI for the simulation (log
// pane inside the terminal UI), HW for the headless service.
type LoggingConfig struct {
	TUI LogProfile `yaml:"TUI" json:"TUI"`
	HW  LogProfile `yaml:"HW" json:"HW"`
}

// SimConfig tunes the simulation mode.
type SimConfig struct {
	Entries int `yaml:"Entries" json:"Entries"`
}

// ReadConfig parses and validates the yaml config file.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	conf := &Config{}
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.Configfile = cfile
	conf.setDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// setDefaults fills the optional tunables a config file typically leaves
// out. Required values stay zero and fail validation instead.
func (c *Config) setDefaults() {
	if c.Hardware.ReconnectMin == 0 {
		c.Hardware.ReconnectMin = 1 * time.Second
	}
	if c.Hardware.ReconnectMax == 0 {
		c.Hardware.ReconnectMax = 30 * time.Second
	}
	if c.Hardware.PingInterval == 0 {
		c.Hardware.PingInterval = 30 * time.Second
	}
	if c.Hardware.WriteTimeout == 0 {
		c.Hardware.WriteTimeout = 10 * time.Second
	}
	if c.Hardware.QueueSize == 0 {
		c.Hardware.QueueSize = 64
	}
	if c.Coordinator.SelectedLevel == 0 {
		c.Coordinator.SelectedLevel = 1.0
	}
	if c.Coordinator.UnselectedLevel == 0 {
		c.Coordinator.UnselectedLevel = 0.3
	}
	if c.Sim.Entries == 0 {
		c.Sim.Entries = 24
	}
}

// Validate checks value ranges and cross-field consistency.
func (c *Config) Validate() error {
	if c.Grid.Pixels <= 0 {
		return fmt.Errorf("Grid.Pixels must be greater than 0")
	}
	if c.Coordinator.InactivityTimeout <= 0 {
		return fmt.Errorf("Coordinator.InactivityTimeout must be greater than 0")
	}
	if err := unitRange("Coordinator.DefaultBrightness", c.Coordinator.DefaultBrightness); err != nil {
		return err
	}
	if err := unitRange("Coordinator.SelectedLevel", c.Coordinator.SelectedLevel); err != nil {
		return err
	}
	if err := unitRange("Coordinator.UnselectedLevel", c.Coordinator.UnselectedLevel); err != nil {
		return err
	}
	for typ, hex := range c.Palette {
		if _, err := colorful.Hex(hex); err != nil {
			return fmt.Errorf("palette color for type %q is not a valid hex color: %v", typ, err)
		}
	}
	if c.Hardware.URL != "" &&
		!strings.HasPrefix(c.Hardware.URL, "ws://") && !strings.HasPrefix(c.Hardware.URL, "wss://") {
		return fmt.Errorf("Hardware.URL must be a ws:// or wss:// URL")
	}
	if c.Hardware.ReconnectMin > c.Hardware.ReconnectMax {
		return fmt.Errorf("Hardware.ReconnectMin must not be larger than Hardware.ReconnectMax")
	}
	if c.Hardware.QueueSize < 0 {
		return fmt.Errorf("Hardware.QueueSize must be non-negative")
	}
	if c.NightDim.Enabled {
		if c.NightDim.Latitude < -90 || c.NightDim.Latitude > 90 {
			return fmt.Errorf("NightDim.Latitude must be between -90 and 90")
		}
		if c.NightDim.Longitude < -180 || c.NightDim.Longitude > 180 {
			return fmt.Errorf("NightDim.Longitude must be between -180 and 180")
		}
		if err := unitRange("NightDim.DimBrightness", c.NightDim.DimBrightness); err != nil {
			return err
		}
	}
	if c.Sim.Entries < 0 {
		return fmt.Errorf("Sim.Entries must be non-negative")
	}
	if c.Sim.Entries > c.Grid.Pixels {
		return fmt.Errorf("Sim.Entries must not exceed Grid.Pixels")
	}
	return nil
}

func unitRange(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be between 0.0 and 1.0", name)
	}
	return nil
}
