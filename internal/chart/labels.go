package chart

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

const (
	dpi        float64 = 72
	labelSize  float64 = 10
	valueSize  float64 = 11
	panelWidth         = 120
	boxHeight          = 30
	boxGap             = 4
	boxMargin          = 3
)

// LabelPanel draws one box per graph label holding the latest value of its
// field. Scatter labels alternate between the x and y field of a pair and
// share the pair's colour.
type LabelPanel struct {
	context *freetype.Context
}

// NewLabelPanel creates a label panel renderer.
func NewLabelPanel() (*LabelPanel, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetHinting(font.HintingFull)

	return &LabelPanel{context: context}, nil
}

// Render draws the panel. A zero row draws the labels without values.
func (p *LabelPanel) Render(mode telemetry.Mode, labels []string, latest telemetry.Row) *image.RGBA {
	height := boxGap + len(labels)*(boxHeight+boxGap)
	img := image.NewRGBA(image.Rect(0, 0, panelWidth, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	p.context.SetClip(img.Bounds())
	p.context.SetDst(img)

	for i, label := range labels {
		slot, prefix := i, ""
		if mode == telemetry.ModeScatter {
			slot, prefix = i/2, [2]string{"x: ", "y: "}[i%2]
		}

		top := boxGap + i*(boxHeight+boxGap)
		box := image.Rect(0, top, panelWidth, top+boxHeight)
		draw.Draw(img, box, image.NewUniform(SeriesColor(slot)), image.Point{}, draw.Src)

		value := box.Inset(boxMargin)
		value.Min.Y = top + boxHeight/2
		draw.Draw(img, value, image.NewUniform(LabelBackground(slot)), image.Point{}, draw.Src)

		p.text(prefix+label, labelSize, image.White, boxMargin, top+boxHeight/2-3)
		if i < len(latest.Fields) && latest.Fields[i].IsValid {
			p.text(formatReading(latest.Fields[i].Value), valueSize, image.Black, boxMargin+2, top+boxHeight-boxMargin-2)
		}
	}

	return img
}

// WritePNG renders the panel and encodes it as PNG.
func (p *LabelPanel) WritePNG(w io.Writer, mode telemetry.Mode, labels []string, latest telemetry.Row) error {
	if err := png.Encode(w, p.Render(mode, labels, latest)); err != nil {
		return fmt.Errorf("encoding label panel: %w", err)
	}
	return nil
}

func (p *LabelPanel) text(s string, size float64, src *image.Uniform, x, y int) {
	p.context.SetFontSize(size)
	p.context.SetSrc(src)
	_, _ = p.context.DrawString(s, freetype.Pt(x, y))
}

func formatReading(v float64) string {
	return humanize.CommafWithDigits(v, 4)
}

// FieldLabels returns one label per plotted field: the configured labels,
// or the series names when the graph grew its series from the data.
func FieldLabels(config telemetry.GraphConfig, series []telemetry.Series) []string {
	if len(config.Labels) > 0 {
		return config.Labels
	}

	labels := make([]string, 0, 2*len(series))
	for _, s := range series {
		labels = append(labels, s.Label)
		if config.Mode == telemetry.ModeScatter {
			labels = append(labels, s.Label)
		}
	}
	return labels
}
