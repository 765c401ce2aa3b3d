package config

// RuntimeConfig defines the subset of the configuration that can be safely
// modified at runtime through the dashboard. It excludes the hardware link,
// listener and logging settings.
type RuntimeConfig struct {
	Coordinator CoordinatorConfig `yaml:"Coordinator" json:"Coordinator"`
	Palette     map[string]string `yaml:"Palette" json:"Palette"`
	NightDim    NightDimConfig    `yaml:"NightDim" json:"NightDim"`
}
