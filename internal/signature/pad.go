// Package signature rasterizes free-hand strokes into a trimmed PNG data URI.
package signature

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sync"

	"golang.org/x/image/vector"
)

const dataURIPrefix = "data:image/png;base64,"

// MaxStrokePoints bounds the points accepted in a single gesture.
const MaxStrokePoints = 4096

// capSegments is the number of edges of the polygon approximating a round cap.
const capSegments = 16

var (
	ErrEmptyStroke   = errors.New("stroke has no points")
	ErrStrokeTooLong = fmt.Errorf("stroke has more than %d points", MaxStrokePoints)
)

// Point is a pointer position in canvas pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Option configures a Pad.
type Option func(*Pad)

// WithPenWidth sets the stroke width in pixels.
func WithPenWidth(w float64) Option {
	return func(p *Pad) {
		if w > 0 {
			p.penWidth = w
		}
	}
}

// WithPenColor sets the ink color.
func WithPenColor(c color.Color) Option {
	return func(p *Pad) { p.pen = image.NewUniform(c) }
}

// OnChange registers the callback that receives the encoded signature after
// every stroke and "" after Clear.
func OnChange(fn func(dataURI string)) Option {
	return func(p *Pad) { p.onChange = fn }
}

// Pad is a cumulative drawing canvas. Strokes add ink; the emitted image is
// always recomputed from the whole canvas. The canvas is allocated on the
// first stroke.
type Pad struct {
	mu       sync.Mutex
	width    int
	height   int
	canvas   *image.RGBA
	pen      image.Image
	penWidth float64
	inked    bool
	onChange func(string)
}

// NewPad creates a transparent width x height pad with a black pen.
func NewPad(width, height int, opts ...Option) *Pad {
	p := &Pad{
		width:    width,
		height:   height,
		pen:      image.NewUniform(color.Black),
		penWidth: 2.5,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Stroke draws one completed gesture and returns the trimmed canvas as a data
// URI. The result is "" while nothing visible has been drawn. Segments are
// clipped to the canvas, so far-away points cost no more than near ones.
func (p *Pad) Stroke(points []Point) (string, error) {
	if len(points) == 0 {
		return "", ErrEmptyStroke
	}
	if len(points) > MaxStrokePoints {
		return "", ErrStrokeTooLong
	}

	p.mu.Lock()
	if p.canvas == nil {
		p.canvas = image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	}
	z := vector.NewRasterizer(p.width, p.height)
	z.DrawOp = draw.Over
	p.path(z, points)
	z.Draw(p.canvas, p.canvas.Bounds(), p.pen, image.Point{})

	var (
		uri string
		err error
	)
	trimmed := Trim(p.canvas)
	p.inked = !trimmed.Bounds().Empty()
	if p.inked {
		uri, err = encode(trimmed)
	}
	fn := p.onChange
	p.mu.Unlock()

	if err != nil {
		return "", err
	}
	if fn != nil {
		fn(uri)
	}
	return uri, nil
}

// Clear wipes the canvas and reports an empty signature.
func (p *Pad) Clear() {
	p.mu.Lock()
	if p.canvas != nil {
		draw.Draw(p.canvas, p.canvas.Bounds(), image.Transparent, image.Point{}, draw.Src)
	}
	p.inked = false
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil {
		fn("")
	}
}

// Empty reports whether no ink is on the canvas.
func (p *Pad) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.inked
}

// path adds the outline of a round-capped polyline to z. Every polygon is
// wound the same way so overlaps merge instead of cancelling.
func (p *Pad) path(z *vector.Rasterizer, points []Point) {
	r := p.penWidth / 2
	box := [4]float64{-r, -r, float64(p.width) + r, float64(p.height) + r}

	for i, pt := range points {
		if pt.finite() && pt.X >= box[0] && pt.Y >= box[1] && pt.X <= box[2] && pt.Y <= box[3] {
			roundCap(z, pt, r)
		}
		if i == 0 {
			continue
		}
		if a, b, ok := clip(points[i-1], pt, box); ok {
			segment(z, a, b, r)
		}
	}
}

func roundCap(z *vector.Rasterizer, c Point, r float64) {
	for k := 0; k <= capSegments; k++ {
		theta := -2 * math.Pi * float64(k) / capSegments
		x := float32(c.X + r*math.Cos(theta))
		y := float32(c.Y + r*math.Sin(theta))
		if k == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
}

func segment(z *vector.Rasterizer, a, b Point, r float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*r, dx/l*r
	z.MoveTo(float32(a.X+nx), float32(a.Y+ny))
	z.LineTo(float32(b.X+nx), float32(b.Y+ny))
	z.LineTo(float32(b.X-nx), float32(b.Y-ny))
	z.LineTo(float32(a.X-nx), float32(a.Y-ny))
	z.ClosePath()
}

// clip cuts segment ab to box (minX, minY, maxX, maxY) and reports whether
// any part of it remains.
func clip(a, b Point, box [4]float64) (Point, Point, bool) {
	if !a.finite() || !b.finite() {
		return a, b, false
	}
	dx, dy := b.X-a.X, b.Y-a.Y
	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-dx, a.X - box[0]},
		{dx, box[2] - a.X},
		{-dy, a.Y - box[1]},
		{dy, box[3] - a.Y},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return a, b, false
			}
			t0 = max(t0, t)
		} else {
			if t < t0 {
				return a, b, false
			}
			t1 = min(t1, t)
		}
	}
	return Point{X: a.X + t0*dx, Y: a.Y + t0*dy}, Point{X: a.X + t1*dx, Y: a.Y + t1*dy}, true
}

// Trim returns the sub-image bounded by pixels that are not fully transparent.
// A blank image trims to an empty rectangle.
func Trim(img image.Image) image.Image {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a == 0 {
				continue
			}
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, max(maxX-minX+1, 0), max(maxY-minY+1, 0)))
	if out.Bounds().Empty() {
		return out
	}
	draw.Draw(out, out.Bounds(), img, image.Pt(minX, minY), draw.Src)
	return out
}

// FromImage trims an existing image and encodes it as a PNG data URI.
func FromImage(img image.Image) (string, error) {
	trimmed := Trim(img)
	if trimmed.Bounds().Empty() {
		return "", errors.New("image has no visible pixels")
	}
	return encode(trimmed)
}

func encode(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode signature: %w", err)
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode parses a data URI produced by this package.
func Decode(dataURI string) (image.Image, error) {
	if len(dataURI) < len(dataURIPrefix) || dataURI[:len(dataURIPrefix)] != dataURIPrefix {
		return nil, errors.New("not a png data uri")
	}
	raw, err := base64.StdEncoding.DecodeString(dataURI[len(dataURIPrefix):])
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	return png.Decode(bytes.NewReader(raw))
}
