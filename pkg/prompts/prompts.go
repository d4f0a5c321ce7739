package prompts

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

const defaultPromptsPath = "prompts.yaml"

type Prompts struct {
	Background BackgroundPrompts `yaml:"background"`
	Style      StylePrompts      `yaml:"style"`
}

type BackgroundPrompts struct {
	Template string            `yaml:"template"`
	Suffixes map[string]string `yaml:"suffixes"`
}

type StylePrompts struct {
	System string `yaml:"system"`
	Refine string `yaml:"refine"`
}

type BackgroundParams struct {
	Style     string
	SlideType string
	Suffix    string
}

type RefineParams struct {
	Style      string
	DeckName   string
	SlideTypes string
}

const (
	defaultBackgroundTemplate = "Presentation slide background, 16:9, no text, no letters, no logos. " +
		"Visual style: {{.Style}}. {{.Suffix}}"

	defaultStyleSystem = "You are an art director writing image-generation style briefs for slide backgrounds. " +
		"Reply with the brief only, one paragraph, no preamble."

	defaultStyleRefine = "Deck: {{.DeckName}}\nSlides: {{.SlideTypes}}\n" +
		"Rewrite this style description into a concrete visual brief covering palette, lighting, texture " +
		"and composition. Keep it under 60 words.\nStyle: {{.Style}}"
)

var defaultSuffixes = map[string]string{
	"title":    "Bold hero composition with a calm central area for a large headline.",
	"content":  "Darker left area for text overlay, visual interest on the right.",
	"data":     "Minimal and low contrast with a clean open center for a chart.",
	"features": "Evenly lit with subtle structure that supports a grid of cards.",
	"closing":  "Soft and uplifting with an open center for a short closing message.",
}

// Default returns the built-in prompt set.
func Default() *Prompts {
	p := &Prompts{}
	p.applyDefaults()
	return p
}

// Load reads prompts.yaml from the working directory when present. Missing
// entries keep their built-in values.
func Load() (*Prompts, error) {
	p, err := LoadFrom(defaultPromptsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return p, err
}

func LoadFrom(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	p.applyDefaults()

	return &p, nil
}

func (p *Prompts) applyDefaults() {
	if p.Background.Template == "" {
		p.Background.Template = defaultBackgroundTemplate
	}
	if p.Background.Suffixes == nil {
		p.Background.Suffixes = make(map[string]string, len(defaultSuffixes))
	}
	for k, v := range defaultSuffixes {
		if _, ok := p.Background.Suffixes[k]; !ok {
			p.Background.Suffixes[k] = v
		}
	}
	if p.Style.System == "" {
		p.Style.System = defaultStyleSystem
	}
	if p.Style.Refine == "" {
		p.Style.Refine = defaultStyleRefine
	}
}

// Suffix returns the per-type instruction appended to background prompts.
// Unknown types use the content suffix.
func (p *Prompts) Suffix(slideType string) string {
	if s, ok := p.Background.Suffixes[strings.ToLower(slideType)]; ok {
		return s
	}
	return p.Background.Suffixes["content"]
}

func (p *Prompts) RenderBackground(style, slideType string) (string, error) {
	out, err := render(p.Background.Template, BackgroundParams{
		Style:     strings.TrimSpace(style),
		SlideType: slideType,
		Suffix:    p.Suffix(slideType),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (p *Prompts) RenderRefine(params RefineParams) (string, error) {
	return render(p.Style.Refine, params)
}

func render(tmpl string, data any) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
