package config

import "sort"

// Presets are applied over DefaultConfig, so each entry only sets what it
// changes.
var Presets = map[string]func(*Config){
	// Side-on stream filling the box, the default scene.
	"waterfall": func(c *Config) {},
	// Elastic exchange with energy loss and light damping.
	"momentum": func(c *Config) {
		c.Physics.Model = "momentum"
		c.Physics.EnergyLoss = 0.2
		c.Physics.Damping = 0.5
		c.Emitter.Vx = 40
		c.Emitter.Every = 2
	},
	// Downward emission from the top edge.
	"rain": func(c *Config) {
		c.Emitter.X = 150
		c.Emitter.Y = 2.5
		c.Emitter.Vx = 0
		c.Emitter.Vy = 15
		c.Emitter.Rows = 1
		c.Emitter.Every = 1
	},
	// A scattered population settling under gravity with no emitter.
	"settle": func(c *Config) {
		c.World.Width = 120
		c.World.Height = 120
		c.Emitter.Enabled = false
		c.Emitter.Scatter = 4000
		c.Physics.Damping = 2
		c.Run.Ticks = 900
	},
}

// GetPreset returns a fresh config for the named preset, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
