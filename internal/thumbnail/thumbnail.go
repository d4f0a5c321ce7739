package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/image/draw"

	"deckcraft/internal/storage"
)

const (
	defaultPdftoppm  = "pdftoppm"
	defaultTileWidth = 320
	defaultColumns   = 4
	gutter           = 8
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Options struct {
	PdftoppmPath string
	TileWidth    int
	Runner       Runner
}

// Generator renders a contact sheet of a PDF's pages.
type Generator struct {
	pdftoppm  string
	tileWidth int
	run       Runner
}

func New(opts Options) *Generator {
	if opts.PdftoppmPath == "" {
		opts.PdftoppmPath = defaultPdftoppm
	}
	if opts.TileWidth <= 0 {
		opts.TileWidth = defaultTileWidth
	}
	if opts.Runner == nil {
		opts.Runner = execRunner
	}
	return &Generator{
		pdftoppm:  opts.PdftoppmPath,
		tileWidth: opts.TileWidth,
		run:       opts.Runner,
	}
}

// Generate rasterizes every page of pdfPath and tiles them columns wide into
// outPath.
func (g *Generator) Generate(ctx context.Context, pdfPath string, columns int, outPath string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "deckcraft-thumbs-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-png", "-scale-to-x", strconv.Itoa(g.tileWidth), "-scale-to-y", "-1", pdfPath, prefix}
	if output, err := g.run(ctx, g.pdftoppm, args...); err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	files, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", fmt.Errorf("list rendered pages: %w", err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("pdftoppm rendered no pages")
	}
	sortPages(files, prefix)

	pages := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := decode(f)
		if err != nil {
			return "", err
		}
		pages = append(pages, img)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, Sheet(pages, columns, g.tileWidth)); err != nil {
		return "", fmt.Errorf("encode contact sheet: %w", err)
	}
	if err := storage.WriteOnce(outPath, buf.Bytes()); err != nil {
		return "", fmt.Errorf("write contact sheet: %w", err)
	}
	return outPath, nil
}

// Sheet tiles pages into a grid of the given column count. Each tile is
// tileWidth wide and keeps the first page's aspect ratio.
func Sheet(pages []image.Image, columns, tileWidth int) *image.RGBA {
	if columns <= 0 {
		columns = defaultColumns
	}
	if columns > len(pages) {
		columns = len(pages)
	}
	if len(pages) == 0 || columns == 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}

	first := pages[0].Bounds()
	tileHeight := tileWidth * first.Dy() / max(first.Dx(), 1)
	rows := (len(pages) + columns - 1) / columns

	width := columns*tileWidth + (columns+1)*gutter
	height := rows*tileHeight + (rows+1)*gutter
	sheet := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(sheet, sheet.Bounds(), &image.Uniform{C: color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}}, image.Point{}, draw.Src)

	for i, page := range pages {
		col, row := i%columns, i/columns
		x := gutter + col*(tileWidth+gutter)
		y := gutter + row*(tileHeight+gutter)
		dst := image.Rect(x, y, x+tileWidth, y+tileHeight)
		draw.ApproxBiLinear.Scale(sheet, dst, page, page.Bounds(), draw.Over, nil)
	}
	return sheet
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode page image %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// sortPages orders pdftoppm outputs by page number; the zero padding width
// depends on the page count.
func sortPages(files []string, prefix string) {
	pageNum := func(f string) int {
		s := f[len(prefix)+1 : len(f)-len(".png")]
		n, _ := strconv.Atoi(s)
		return n
	}
	sort.Slice(files, func(i, j int) bool { return pageNum(files[i]) < pageNum(files[j]) })
}
