package deck

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseYAML(t *testing.T) {
	data := []byte(`
name: Launch
style: watercolor, soft pastel
refs:
  - ./ref.png
slides:
  - type: Title
    title: Hello
  - type: data
    title: Numbers
    chart:
      labels: [a, b]
      values: [1, 2]
`)
	d, err := Parse(data, ".yaml")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if d.Name != "Launch" {
		t.Errorf("Name = %q, want Launch", d.Name)
	}
	if len(d.Slides) != 2 {
		t.Fatalf("len(Slides) = %d, want 2", len(d.Slides))
	}
	if d.Slides[0].Type != TypeTitle {
		t.Errorf("Slides[0].Type = %q, want title", d.Slides[0].Type)
	}
	if d.Slides[1].Chart == nil || len(d.Slides[1].Chart.Values) != 2 {
		t.Errorf("Slides[1].Chart not parsed: %+v", d.Slides[1].Chart)
	}
}

func TestParseJSON(t *testing.T) {
	data := []byte(`{"name":"n","style":"s","slides":[{"type":"closing","title":"bye"}]}`)
	d, err := Parse(data, ".json")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if d.Slides[0].Type != TypeClosing {
		t.Errorf("Type = %q, want closing", d.Slides[0].Type)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		deck    Deck
		wantErr bool
	}{
		{name: "valid", deck: Deck{Name: "n", Style: "s", Slides: []Slide{{Type: TypeTitle}}}},
		{name: "missingName", deck: Deck{Style: "s", Slides: []Slide{{Type: TypeTitle}}}, wantErr: true},
		{name: "missingStyle", deck: Deck{Name: "n", Slides: []Slide{{Type: TypeTitle}}}, wantErr: true},
		{name: "noSlides", deck: Deck{Name: "n", Style: "s"}, wantErr: true},
		{name: "unknownTypeAllowed", deck: Deck{Name: "n", Style: "s", Slides: []Slide{{Type: "timeline"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.deck.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.yaml")
	starter := Starter("Demo", "neon")
	if err := starter.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(loaded.Slides) != len(starter.Slides) {
		t.Errorf("len(Slides) = %d, want %d", len(loaded.Slides), len(starter.Slides))
	}
	for i, s := range loaded.Slides {
		if !s.Type.Known() {
			t.Errorf("slide %d has unknown type %q", i, s.Type)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(os.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Error("Load() should fail for missing file")
	}
}
