package assemble

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const textFont = "Helvetica"

// PDFAssembler builds one PDF page per rendered slide.
type PDFAssembler struct {
	conf *model.Configuration
}

func NewPDFAssembler() *PDFAssembler {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFAssembler{conf: conf}
}

// Document accumulates pages in call order. It is not safe for concurrent use.
type Document struct {
	path         string
	conf         *model.Configuration
	pages        int
	placeholders []Placeholder
	closed       bool
}

// Open starts a new document at path, which must not exist yet.
func (a *PDFAssembler) Open(path string) (*Document, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("document %s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat document: %w", err)
	}
	return &Document{path: path, conf: a.conf}, nil
}

func (d *Document) Path() string {
	return d.path
}

func (d *Document) Pages() int {
	return d.pages
}

func (d *Document) Placeholders() []Placeholder {
	return d.placeholders
}

// AppendSlide adds one page built from markup and returns the placeholder
// regions it declares.
func (d *Document) AppendSlide(markup string) ([]Placeholder, error) {
	if d.closed {
		return nil, fmt.Errorf("document is closed")
	}

	m, err := ParseMarkup(markup)
	if err != nil {
		return nil, err
	}

	imp, err := api.Import(fmt.Sprintf("dim:%s %s, pos:full", num(m.Width), num(m.Height)), types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("page import settings: %w", err)
	}
	if err := api.ImportImagesFile([]string{m.Background}, d.path, imp, d.conf); err != nil {
		return nil, fmt.Errorf("import background: %w", err)
	}
	d.pages++
	page := d.pages

	for _, box := range m.Boxes {
		if err := d.stamp(page, box); err != nil {
			return nil, fmt.Errorf("stamp %s on page %d: %w", box.Role, page, err)
		}
	}

	placeholders := make([]Placeholder, 0, len(m.Placeholders))
	for _, p := range m.Placeholders {
		p.Page = page
		placeholders = append(placeholders, p)
	}
	d.placeholders = append(d.placeholders, placeholders...)

	slog.Debug("Slide appended", "page", page, "boxes", len(m.Boxes), "placeholders", len(placeholders))
	return placeholders, nil
}

func (d *Document) stamp(page int, box TextBox) error {
	if box.Text == "" {
		return nil
	}
	size := box.Size
	if size <= 0 {
		size = 16
	}

	desc := fmt.Sprintf("font:%s, points:%s, pos:tl, off:%s -%s, scale:1 abs, rot:0, fillc:#FFFFFF, op:1",
		textFont, num(size), num(box.Rect.X), num(box.Rect.Y))

	text := wrap(box.Text, box.Rect.W, size)
	return api.AddTextWatermarksFile(d.path, "", []string{strconv.Itoa(page)}, true, text, desc, d.conf)
}

// Close finishes the document and returns its path.
func (d *Document) Close() (string, error) {
	if d.closed {
		return d.path, nil
	}
	d.closed = true
	if d.pages == 0 {
		return "", fmt.Errorf("document has no pages")
	}

	n, err := api.PageCountFile(d.path)
	if err != nil {
		return "", fmt.Errorf("verify document: %w", err)
	}
	if n != d.pages {
		return "", fmt.Errorf("document has %d pages, appended %d", n, d.pages)
	}
	return d.path, nil
}

// wrap breaks text into lines that fit width at the given font size, using
// an average glyph width of half the point size.
func wrap(text string, width, size float64) string {
	if width <= 0 || size <= 0 {
		return text
	}
	limit := int(width / (size * 0.5))
	if limit < 1 {
		limit = 1
	}

	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len([]rune(word)) > limit {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
