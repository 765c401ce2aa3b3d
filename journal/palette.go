package journal

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// Installation palette: one color per journal entry type.
var defaultPalette = map[string]string{
	"Beach":    "#FFA028",
	"Desert":   "#FF5A3C",
	"Lake":     "#00B4C8",
	"Mountain": "#50C878",
	"River":    "#5A5AFF",
	"Ruin":     "#B43CDC",
}

const fallbackColor = "#FFFFFF"

// Palette maps entry types to LED colors. The built-in installation palette
// can be overridden per type from the config file.
type Palette struct {
	colors   map[string]colorful.Color
	fallback colorful.Color
}

// NewPalette builds a palette from the defaults with the given overrides
// applied. Override values must be parseable hex colors.
func NewPalette(overrides map[string]string) (*Palette, error) {
	colors := make(map[string]colorful.Color, len(defaultPalette)+len(overrides))
	for typ, hex := range defaultPalette {
		c, err := colorful.Hex(hex)
		if err != nil {
			return nil, fmt.Errorf("built-in palette color for %q: %w", typ, err)
		}
		colors[typ] = c
	}
	for typ, hex := range overrides {
		c, err := colorful.Hex(hex)
		if err != nil {
			return nil, fmt.Errorf("palette color for type %q is not a valid hex color: %w", typ, err)
		}
		colors[typ] = c
	}
	fb, err := colorful.Hex(fallbackColor)
	if err != nil {
		return nil, err
	}
	return &Palette{colors: colors, fallback: fb}, nil
}

// ColorFor returns the canonical hex color for an entry type. Unknown types
// render white so a mistagged entry is visible instead of dark.
func (p *Palette) ColorFor(entryType string) string {
	if c, ok := p.colors[entryType]; ok {
		return c.Hex()
	}
	return p.fallback.Hex()
}

// Scaled returns the type color with all channels multiplied by level,
// clamped to valid range. The simulation engine uses this for the
// selected/unselected brightness split; the real hardware does the same math
// on its side.
func (p *Palette) Scaled(entryType string, level float64) colorful.Color {
	c, ok := p.colors[entryType]
	if !ok {
		c = p.fallback
	}
	return colorful.Color{R: c.R * level, G: c.G * level, B: c.B * level}.Clamped()
}

// Types returns the entry types the palette knows about.
func (p *Palette) Types() []string {
	types := make([]string, 0, len(p.colors))
	for typ := range p.colors {
		types = append(types, typ)
	}
	return types
}
