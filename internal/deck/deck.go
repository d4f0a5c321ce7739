package deck

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type SlideType string

const (
	TypeTitle    SlideType = "title"
	TypeContent  SlideType = "content"
	TypeData     SlideType = "data"
	TypeFeatures SlideType = "features"
	TypeClosing  SlideType = "closing"
)

var knownTypes = map[SlideType]bool{
	TypeTitle:    true,
	TypeContent:  true,
	TypeData:     true,
	TypeFeatures: true,
	TypeClosing:  true,
}

func (t SlideType) Known() bool {
	return knownTypes[t]
}

type Feature struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

type Chart struct {
	Title  string    `yaml:"title" json:"title"`
	Labels []string  `yaml:"labels" json:"labels"`
	Values []float64 `yaml:"values" json:"values"`
}

// Slide is one typed slide descriptor. Only the fields relevant to its Type
// are read by the renderer.
type Slide struct {
	Type     SlideType `yaml:"type" json:"type"`
	Title    string    `yaml:"title" json:"title"`
	Subtitle string    `yaml:"subtitle,omitempty" json:"subtitle,omitempty"`
	Body     string    `yaml:"body,omitempty" json:"body,omitempty"`
	Bullets  []string  `yaml:"bullets,omitempty" json:"bullets,omitempty"`
	Features []Feature `yaml:"features,omitempty" json:"features,omitempty"`
	Chart    *Chart    `yaml:"chart,omitempty" json:"chart,omitempty"`
	Contact  string    `yaml:"contact,omitempty" json:"contact,omitempty"`
}

type Deck struct {
	Name   string   `yaml:"name" json:"name"`
	Style  string   `yaml:"style" json:"style"`
	Refs   []string `yaml:"refs,omitempty" json:"refs,omitempty"`
	Slides []Slide  `yaml:"slides" json:"slides"`
}

func Load(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck file: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

func Parse(data []byte, ext string) (*Deck, error) {
	var d Deck
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("parse deck json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("parse deck yaml: %w", err)
		}
	}

	for i := range d.Slides {
		d.Slides[i].Type = SlideType(strings.ToLower(strings.TrimSpace(string(d.Slides[i].Type))))
	}
	return &d, nil
}

func (d *Deck) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("deck name is required")
	}
	if strings.TrimSpace(d.Style) == "" {
		return fmt.Errorf("deck style is required")
	}
	if len(d.Slides) == 0 {
		return fmt.Errorf("deck has no slides")
	}
	return nil
}

func (d *Deck) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		data, err = json.MarshalIndent(d, "", "  ")
	} else {
		data, err = yaml.Marshal(d)
	}
	if err != nil {
		return fmt.Errorf("encode deck: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write deck file: %w", err)
	}
	return nil
}

// Starter returns a small deck covering every slide type.
func Starter(name, style string) *Deck {
	return &Deck{
		Name:  name,
		Style: style,
		Slides: []Slide{
			{Type: TypeTitle, Title: name, Subtitle: "An overview"},
			{Type: TypeContent, Title: "Why it matters", Bullets: []string{"First point", "Second point", "Third point"}},
			{Type: TypeData, Title: "By the numbers", Chart: &Chart{Title: "Growth", Labels: []string{"Q1", "Q2", "Q3", "Q4"}, Values: []float64{12, 19, 27, 41}}},
			{Type: TypeFeatures, Title: "Highlights", Features: []Feature{
				{Title: "Fast", Description: "Built for speed"},
				{Title: "Simple", Description: "Easy to adopt"},
				{Title: "Reliable", Description: "Works every time"},
			}},
			{Type: TypeClosing, Title: "Thank you", Contact: "hello@example.com"},
		},
	}
}
