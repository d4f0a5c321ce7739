package fallback

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"

	"deckcraft/internal/deck"
	"deckcraft/internal/storage"
)

const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
)

type Palette [3]color.RGBA

var palettes = map[deck.SlideType]Palette{
	deck.TypeTitle:    {rgb(0x1a, 0x1a, 0x2e), rgb(0x16, 0x21, 0x3e), rgb(0x0f, 0x34, 0x60)},
	deck.TypeContent:  {rgb(0x0f, 0x20, 0x27), rgb(0x20, 0x3a, 0x43), rgb(0x2c, 0x53, 0x64)},
	deck.TypeData:     {rgb(0x14, 0x1e, 0x30), rgb(0x24, 0x3b, 0x55), rgb(0x2f, 0x4f, 0x6f)},
	deck.TypeFeatures: {rgb(0x23, 0x25, 0x26), rgb(0x41, 0x43, 0x45), rgb(0x5a, 0x5d, 0x60)},
	deck.TypeClosing:  {rgb(0x2b, 0x10, 0x55), rgb(0x4a, 0x1c, 0x6b), rgb(0x75, 0x97, 0xde)},
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// PaletteFor returns the gradient stops for t. Unknown types use the content
// palette.
func PaletteFor(t deck.SlideType) Palette {
	if p, ok := palettes[t]; ok {
		return p
	}
	return palettes[deck.TypeContent]
}

type circle struct {
	cx, cy, r float64 // fractions of width, height, height
	alpha     float64
}

var circles = []circle{
	{cx: 0.82, cy: 0.18, r: 0.28, alpha: 0.08},
	{cx: 0.12, cy: 0.88, r: 0.38, alpha: 0.05},
}

// Generator writes gradient backgrounds into a directory.
type Generator struct {
	dir    string
	width  int
	height int
}

func New(dir string, width, height int) *Generator {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Generator{dir: dir, width: width, height: height}
}

func FileName(index int) string {
	return fmt.Sprintf("bg_%d_fallback.png", index)
}

// Generate writes the fallback background for a slide and returns its path.
// The image depends only on slideType.
func (g *Generator) Generate(slideType deck.SlideType, index int) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, g.Render(slideType)); err != nil {
		return "", fmt.Errorf("encode fallback: %w", err)
	}

	path := filepath.Join(g.dir, FileName(index))
	if err := storage.WriteOnce(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("write fallback: %w", err)
	}
	return path, nil
}

func (g *Generator) Render(slideType deck.SlideType) *image.RGBA {
	p := PaletteFor(slideType)
	w, h := g.width, g.height
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t := (float64(x)/float64(w-1) + float64(y)/float64(h-1)) / 2
			r, gr, b := gradientAt(p, t)
			for _, c := range circles {
				dx := float64(x) - c.cx*float64(w)
				dy := float64(y) - c.cy*float64(h)
				rad := c.r * float64(h)
				if dx*dx+dy*dy <= rad*rad {
					r = blend(r, 255, c.alpha)
					gr = blend(gr, 255, c.alpha)
					b = blend(b, 255, c.alpha)
				}
			}
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8(r + 0.5)
			img.Pix[i+1] = uint8(gr + 0.5)
			img.Pix[i+2] = uint8(b + 0.5)
			img.Pix[i+3] = 0xff
		}
	}
	return img
}

func gradientAt(p Palette, t float64) (r, g, b float64) {
	from, to := p[0], p[1]
	if t > 0.5 {
		from, to = p[1], p[2]
		t = (t - 0.5) * 2
	} else {
		t *= 2
	}
	return lerp(from.R, to.R, t), lerp(from.G, to.G, t), lerp(from.B, to.B, t)
}

func lerp(a, b uint8, t float64) float64 {
	return float64(a) + (float64(b)-float64(a))*t
}

func blend(base, over, alpha float64) float64 {
	return base*(1-alpha) + over*alpha
}
