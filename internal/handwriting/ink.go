package handwriting

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"golang.org/x/image/vector"
)

const (
	DefaultCanvasSize = 280
	penWidth          = 2
	eraserWidth       = 20
)

type point struct{ x, y float32 }

// Canvas is a transparent drawing surface for one character sample.
// Strokes are round-capped polylines.
type Canvas struct {
	img    *image.RGBA
	eraser bool
	last   *point
}

func NewCanvas(width, height int) *Canvas {
	if width <= 0 {
		width = DefaultCanvasSize
	}
	if height <= 0 {
		height = DefaultCanvasSize
	}
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// SetEraser switches between additive ink and destructive erasing.
func (c *Canvas) SetEraser(on bool) {
	c.eraser = on
}

func (c *Canvas) Erasing() bool {
	return c.eraser
}

func (c *Canvas) MoveTo(x, y float32) {
	p := point{x, y}
	c.last = &p
	c.dab(p)
}

func (c *Canvas) LineTo(x, y float32) {
	p := point{x, y}
	if c.last == nil {
		c.MoveTo(x, y)
		return
	}
	c.segment(*c.last, p)
	c.dab(p)
	c.last = &p
}

func (c *Canvas) Lift() {
	c.last = nil
}

func (c *Canvas) Clear() {
	draw.Draw(c.img, c.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
	c.last = nil
}

// Empty reports whether nothing is drawn.
func (c *Canvas) Empty() bool {
	for i := 3; i < len(c.img.Pix); i += 4 {
		if c.img.Pix[i] != 0 {
			return false
		}
	}
	return true
}

func (c *Canvas) Image() image.Image {
	return c.img
}

// DataURL encodes the surface as a PNG data URL.
func (c *Canvas) DataURL() (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (c *Canvas) width() float32 {
	if c.eraser {
		return eraserWidth
	}
	return penWidth
}

func (c *Canvas) segment(from, to point) {
	dx, dy := to.x-from.x, to.y-from.y
	length := float32(math.Hypot(float64(dx), float64(dy)))
	if length == 0 {
		return
	}
	half := c.width() / 2
	nx, ny := -dy/length*half, dx/length*half

	z := c.rasterizer()
	z.MoveTo(from.x+nx, from.y+ny)
	z.LineTo(to.x+nx, to.y+ny)
	z.LineTo(to.x-nx, to.y-ny)
	z.LineTo(from.x-nx, from.y-ny)
	z.ClosePath()
	c.paint(z)
}

// dab draws the round cap at p.
func (c *Canvas) dab(p point) {
	const steps = 16
	r := c.width() / 2
	z := c.rasterizer()
	for i := 0; i < steps; i++ {
		angle := 2 * math.Pi * float64(i) / steps
		x := p.x + r*float32(math.Cos(angle))
		y := p.y + r*float32(math.Sin(angle))
		if i == 0 {
			z.MoveTo(x, y)
			continue
		}
		z.LineTo(x, y)
	}
	z.ClosePath()
	c.paint(z)
}

func (c *Canvas) rasterizer() *vector.Rasterizer {
	b := c.img.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	if c.eraser {
		z.DrawOp = draw.Src
	}
	return z
}

func (c *Canvas) paint(z *vector.Rasterizer) {
	var src image.Image = image.NewUniform(color.Black)
	if c.eraser {
		src = image.Transparent
	}
	z.Draw(c.img, c.img.Bounds(), src, image.Point{})
}
