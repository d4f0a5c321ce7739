package render

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"

	"deckcraft/internal/deck"
)

const (
	DefaultWidth  = 960
	DefaultHeight = 540
)

var ErrUnknownType = errors.New("no renderer for slide type")

// Box is an absolutely positioned text element in layout units.
type Box struct {
	Role string
	Size int
	X, Y int
	W, H int
	Text string
}

type Placeholder struct {
	ID   string
	X, Y int
	W, H int
}

type page struct {
	Width        int
	Height       int
	Type         deck.SlideType
	Background   template.URL
	Boxes        []Box
	Placeholders []Placeholder
}

type layoutFunc func(index int, s deck.Slide) ([]Box, []Placeholder)

var layouts = map[deck.SlideType]layoutFunc{
	deck.TypeTitle:    titleLayout,
	deck.TypeContent:  contentLayout,
	deck.TypeData:     dataLayout,
	deck.TypeFeatures: featuresLayout,
	deck.TypeClosing:  closingLayout,
}

// Renderer turns slide descriptors into fixed-size HTML documents.
type Renderer struct {
	width  int
	height int
	tmpl   *template.Template
}

func New(width, height int) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Renderer{
		width:  width,
		height: height,
		tmpl:   template.Must(template.New("slide").Parse(slideTemplate)),
	}
}

func (r *Renderer) Supports(t deck.SlideType) bool {
	_, ok := layouts[t]
	return ok
}

// Render produces the markup for slide index with the given background.
func (r *Renderer) Render(index int, slide deck.Slide, background string) (string, error) {
	layout, ok := layouts[slide.Type]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, slide.Type)
	}

	boxes, placeholders := layout(index, slide)
	p := page{
		Width:        r.width,
		Height:       r.height,
		Type:         slide.Type,
		Background:   backgroundURL(background),
		Boxes:        make([]Box, 0, len(boxes)),
		Placeholders: make([]Placeholder, 0, len(placeholders)),
	}
	for _, b := range boxes {
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		b.X, b.Y, b.W, b.H = r.scale(b.X, b.Y, b.W, b.H)
		p.Boxes = append(p.Boxes, b)
	}
	for _, ph := range placeholders {
		ph.X, ph.Y, ph.W, ph.H = r.scale(ph.X, ph.Y, ph.W, ph.H)
		p.Placeholders = append(p.Placeholders, ph)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("execute slide template: %w", err)
	}
	return buf.String(), nil
}

func (r *Renderer) scale(x, y, w, h int) (int, int, int, int) {
	sx := func(v int) int { return v * r.width / DefaultWidth }
	sy := func(v int) int { return v * r.height / DefaultHeight }
	return sx(x), sy(y), sx(w), sy(h)
}

func backgroundURL(path string) template.URL {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return template.URL("file://" + filepath.ToSlash(path))
}

const slideTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { margin: 0; width: {{.Width}}px; height: {{.Height}}px; position: relative; overflow: hidden; font-family: Helvetica, Arial, sans-serif; color: #ffffff; }
.background { position: absolute; left: 0; top: 0; width: {{.Width}}px; height: {{.Height}}px; object-fit: cover; }
.placeholder { border: 1px dashed rgba(255,255,255,0.4); }
</style>
</head>
<body data-type="{{.Type}}" data-width="{{.Width}}" data-height="{{.Height}}">
{{- if .Background}}
<img class="background" src="{{.Background}}" alt="">
{{- end}}
{{- range .Boxes}}
<div data-role="{{.Role}}" data-size="{{.Size}}" style="position:absolute;left:{{.X}}px;top:{{.Y}}px;width:{{.W}}px;height:{{.H}}px;font-size:{{.Size}}pt">{{.Text}}</div>
{{- end}}
{{- range .Placeholders}}
<div class="placeholder" id="{{.ID}}" style="position:absolute;left:{{.X}}px;top:{{.Y}}px;width:{{.W}}px;height:{{.H}}px"></div>
{{- end}}
</body>
</html>
`
