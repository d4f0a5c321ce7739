package assemble

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

type Rect struct {
	X, Y, W, H float64
}

type TextBox struct {
	Role string
	Size float64
	Rect Rect
	Text string
}

type Placeholder struct {
	ID   string
	Page int
	Rect Rect
}

// Markup is the positioned content extracted from a rendered slide.
type Markup struct {
	Width        float64
	Height       float64
	Background   string
	Boxes        []TextBox
	Placeholders []Placeholder
}

// ParseMarkup reads a rendered slide document. Elements are positioned with
// absolute left/top/width/height styles in pixels.
func ParseMarkup(doc string) (*Markup, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	m := &Markup{}
	var walk func(n *html.Node) error
	walk = func(n *html.Node) error {
		if n.Type == html.ElementNode {
			if err := m.visit(n); err != nil {
				return err
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}

	if m.Width <= 0 || m.Height <= 0 {
		return nil, fmt.Errorf("markup has no canvas size")
	}
	if m.Background == "" {
		return nil, fmt.Errorf("markup has no background image")
	}
	return m, nil
}

func (m *Markup) visit(n *html.Node) error {
	switch n.Data {
	case "body":
		m.Width = parseNumber(attr(n, "data-width"))
		m.Height = parseNumber(attr(n, "data-height"))
	case "img":
		if !hasClass(n, "background") {
			return nil
		}
		path, err := localPath(attr(n, "src"))
		if err != nil {
			return err
		}
		m.Background = path
	case "div":
		if role := attr(n, "data-role"); role != "" {
			m.Boxes = append(m.Boxes, TextBox{
				Role: role,
				Size: parseNumber(attr(n, "data-size")),
				Rect: parseRect(attr(n, "style")),
				Text: strings.TrimSpace(textContent(n)),
			})
			return nil
		}
		if hasClass(n, "placeholder") {
			m.Placeholders = append(m.Placeholders, Placeholder{
				ID:   attr(n, "id"),
				Rect: parseRect(attr(n, "style")),
			})
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func localPath(src string) (string, error) {
	if !strings.HasPrefix(src, "file:") {
		return src, nil
	}
	u, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse background url: %w", err)
	}
	return u.Path, nil
}

func parseRect(style string) Rect {
	var r Rect
	for _, decl := range strings.Split(style, ";") {
		key, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		v := parseNumber(val)
		switch strings.TrimSpace(key) {
		case "left":
			r.X = v
		case "top":
			r.Y = v
		case "width":
			r.W = v
		case "height":
			r.H = v
		}
	}
	return r
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimSuffix(s, "px"), "pt")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
