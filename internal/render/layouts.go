package render

import (
	"fmt"

	"deckcraft/internal/deck"
)

const (
	margin = 64
	inner  = DefaultWidth - 2*margin
)

func titleLayout(_ int, s deck.Slide) ([]Box, []Placeholder) {
	return []Box{
		{Role: "title", Size: 44, X: margin, Y: 190, W: inner, H: 84, Text: s.Title},
		{Role: "subtitle", Size: 22, X: margin, Y: 290, W: inner, H: 44, Text: s.Subtitle},
	}, nil
}

// contentLayout keeps text in the left half, over the darker area the
// background prompt asks for.
func contentLayout(_ int, s deck.Slide) ([]Box, []Placeholder) {
	boxes := []Box{
		{Role: "title", Size: 32, X: margin, Y: 48, W: 520, H: 60, Text: s.Title},
	}
	y := 132
	if s.Body != "" {
		boxes = append(boxes, Box{Role: "body", Size: 16, X: margin, Y: y, W: 460, H: 96, Text: s.Body})
		y += 112
	}
	for _, b := range s.Bullets {
		if y > DefaultHeight-margin {
			break
		}
		boxes = append(boxes, Box{Role: "bullet", Size: 16, X: margin, Y: y, W: 460, H: 30, Text: "• " + b})
		y += 36
	}
	return boxes, nil
}

func dataLayout(index int, s deck.Slide) ([]Box, []Placeholder) {
	boxes := []Box{
		{Role: "title", Size: 28, X: margin, Y: 36, W: inner, H: 52, Text: s.Title},
	}
	chartTop := 108
	if s.Chart != nil && s.Chart.Title != "" {
		boxes = append(boxes, Box{Role: "chart-title", Size: 16, X: margin, Y: 96, W: inner, H: 28, Text: s.Chart.Title})
		chartTop = 132
	}
	return boxes, []Placeholder{
		{ID: fmt.Sprintf("chart-%d", index), X: margin, Y: chartTop, W: inner, H: DefaultHeight - chartTop - 48},
	}
}

func featuresLayout(_ int, s deck.Slide) ([]Box, []Placeholder) {
	boxes := []Box{
		{Role: "title", Size: 30, X: margin, Y: 48, W: inner, H: 56, Text: s.Title},
	}

	features := s.Features
	if len(features) > 4 {
		features = features[:4]
	}
	if len(features) == 0 {
		return boxes, nil
	}

	const gap = 24
	w := (inner - gap*(len(features)-1)) / len(features)
	for i, f := range features {
		x := margin + i*(w+gap)
		boxes = append(boxes,
			Box{Role: "feature-title", Size: 18, X: x, Y: 190, W: w, H: 36, Text: f.Title},
			Box{Role: "feature-description", Size: 13, X: x, Y: 236, W: w, H: 140, Text: f.Description},
		)
	}
	return boxes, nil
}

func closingLayout(_ int, s deck.Slide) ([]Box, []Placeholder) {
	return []Box{
		{Role: "title", Size: 40, X: margin, Y: 200, W: inner, H: 76, Text: s.Title},
		{Role: "subtitle", Size: 20, X: margin, Y: 286, W: inner, H: 40, Text: s.Subtitle},
		{Role: "contact", Size: 16, X: margin, Y: 380, W: inner, H: 32, Text: s.Contact},
	}, nil
}
