package chart

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// seriesHex is the stroke colour of each series slot.
var seriesHex = []string{
	"#0000ff",
	"#00bbbb",
	"#00dd00",
	"#dddd00",
	"#ff9900",
	"#ff0000",
	"#dd0099",
	"#9900dd",
	"#777777",
	"#000000",
}

var palette = buildPalette()

func buildPalette() []colorful.Color {
	colors := make([]colorful.Color, len(seriesHex))
	for i, hex := range seriesHex {
		c, err := colorful.Hex(hex)
		if err != nil {
			panic(err)
		}
		colors[i] = c
	}
	return colors
}

// SeriesColor returns the colour of series i. Slots past the palette wrap
// around with a shifted hue.
func SeriesColor(i int) color.RGBA {
	c := palette[i%len(palette)]
	if turn := i / len(palette); turn > 0 {
		h, s, v := c.Hsv()
		c = colorful.Hsv(h+float64(turn)*37, s, v).Clamped()
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// LabelBackground returns a lightened tint of the series colour used behind
// value text.
func LabelBackground(i int) color.RGBA {
	c := palette[i%len(palette)]
	tint := c.BlendLab(colorful.Color{R: 1, G: 1, B: 1}, 0.7).Clamped()
	r, g, b := tint.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func drawingColor(c color.RGBA) drawing.Color {
	return drawing.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}
