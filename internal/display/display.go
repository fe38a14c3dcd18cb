// Package display renders fixed-position text lines into an off-device 1-bit
// buffer and pushes that buffer to a monochrome panel on demand.
package display

import (
	"fmt"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// FontSize gives Go Mono a 6 px advance, so 21 characters fit a 128 px row.
const FontSize = 10

// Panel is the physical display. *ssd1306.Dev satisfies it.
type Panel interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// Line is a piece of text whose top-left corner sits at At.
type Line struct {
	Text string
	At   image.Point
}

type Options struct {
	// FlushAfterClear pushes the blank buffer to the panel before drawing,
	// which shows an empty frame between updates.
	FlushAfterClear bool
}

// Display owns the pixel buffer for one panel.
type Display struct {
	panel  Panel
	opts   Options
	buf    *image1bit.VerticalLSB
	face   font.Face
	ascent int
	ink    image.Image
}

func New(p Panel, opts Options) (*Display, error) {
	f, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("font face: %w", err)
	}

	return &Display{
		panel:  p,
		opts:   opts,
		buf:    image1bit.NewVerticalLSB(p.Bounds()),
		face:   face,
		ascent: face.Metrics().Ascent.Ceil(),
		ink:    &image.Uniform{C: image1bit.On},
	}, nil
}

// Clear switches every pixel of the buffer off. The panel is not touched.
func (d *Display) Clear() {
	clear(d.buf.Pix)
}

// Flush copies the whole buffer to the panel.
func (d *Display) Flush() error {
	if err := d.panel.Draw(d.buf.Bounds(), d.buf, d.buf.Bounds().Min); err != nil {
		return fmt.Errorf("display flush: %w", err)
	}
	return nil
}

// DrawText rasterises l into the buffer. Pixels outside the buffer are clipped.
func (d *Display) DrawText(l Line) {
	dr := font.Drawer{
		Dst:  d.buf,
		Src:  d.ink,
		Face: d.face,
		Dot:  fixed.P(l.At.X, l.At.Y+d.ascent),
	}
	dr.DrawString(l.Text)
}

// Render replaces the panel content with lines.
func (d *Display) Render(lines []Line) error {
	d.Clear()
	if d.opts.FlushAfterClear {
		if err := d.Flush(); err != nil {
			return err
		}
	}
	for _, l := range lines {
		d.DrawText(l)
	}
	return d.Flush()
}

// Snapshot returns a copy of the buffer bytes in panel page order.
func (d *Display) Snapshot() []byte {
	return append([]byte(nil), d.buf.Pix...)
}

// Bounds is the buffer size in pixels.
func (d *Display) Bounds() image.Rectangle {
	return d.buf.Bounds()
}
