package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"deckcraft/internal/deck"

	"github.com/fsnotify/fsnotify"
)

func TestLoadDeck(t *testing.T) {
	dir := t.TempDir()
	deckPath := filepath.Join(dir, "deck.yaml")
	content := `
name: Launch
style: neon noir
refs: [mood.png]
slides:
  - type: title
    title: Launch
  - type: closing
    title: Thanks
`
	if err := os.WriteFile(deckPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		path      string
		deckName  string
		style     string
		refs      []string
		wantName  string
		wantStyle string
		wantRefs  int
		wantSlide int
		wantErr   error
	}{
		{name: "fromFile", path: deckPath, wantName: "Launch", wantStyle: "neon noir", wantRefs: 1, wantSlide: 2},
		{name: "flagsOverrideFile", path: deckPath, deckName: "Relaunch", style: "paper", refs: []string{" a.png", "", "gs://b/c.png"}, wantName: "Relaunch", wantStyle: "paper", wantRefs: 2, wantSlide: 2},
		{name: "flagsOnly", deckName: "Pitch", style: "pastel", wantName: "Pitch", wantStyle: "pastel", wantSlide: 5},
		{name: "missingStyle", deckName: "Pitch", wantErr: errMissingDeckFields},
		{name: "missingName", style: "pastel", wantErr: errMissingDeckFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := loadDeck(tt.path, tt.deckName, tt.style, tt.refs)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("loadDeck() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadDeck() error = %v", err)
			}
			if d.Name != tt.wantName || d.Style != tt.wantStyle {
				t.Errorf("deck = %q/%q, want %q/%q", d.Name, d.Style, tt.wantName, tt.wantStyle)
			}
			if len(d.Refs) != tt.wantRefs {
				t.Errorf("Refs = %v, want %d", d.Refs, tt.wantRefs)
			}
			if len(d.Slides) != tt.wantSlide {
				t.Errorf("Slides = %d, want %d", len(d.Slides), tt.wantSlide)
			}
		})
	}
}

func TestLoadDeckMissingFile(t *testing.T) {
	if _, err := loadDeck("/nonexistent/deck.yaml", "x", "y", nil); err == nil {
		t.Error("expected error for missing deck file")
	}
}

func TestBuildsToRemove(t *testing.T) {
	builds := []string{"a", "b", "c"}

	tests := []struct {
		keep int
		want int
	}{
		{0, 3},
		{1, 2},
		{3, 0},
		{10, 0},
		{-1, 3},
	}
	for _, tt := range tests {
		got := buildsToRemove(builds, tt.keep)
		if len(got) != tt.want {
			t.Errorf("buildsToRemove(keep=%d) = %v, want %d entries", tt.keep, got, tt.want)
		}
		if tt.keep > 0 && len(got) > 0 && got[len(got)-1] == builds[len(builds)-1] {
			t.Errorf("buildsToRemove(keep=%d) removed the newest build", tt.keep)
		}
	}
}

func TestStarterWithTypes(t *testing.T) {
	d := starterWithTypes("Pitch", "pastel", []string{"closing", "title"})

	if len(d.Slides) != 2 {
		t.Fatalf("Slides = %d, want 2", len(d.Slides))
	}
	if d.Slides[0].Type != deck.TypeTitle || d.Slides[1].Type != deck.TypeClosing {
		t.Errorf("slide order = %s, %s", d.Slides[0].Type, d.Slides[1].Type)
	}
}

func TestIsDeckChange(t *testing.T) {
	target := filepath.Join(string(filepath.Separator), "decks", "deck.yaml")

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write", fsnotify.Event{Name: target, Op: fsnotify.Write}, true},
		{"create", fsnotify.Event{Name: target, Op: fsnotify.Create}, true},
		{"chmod", fsnotify.Event{Name: target, Op: fsnotify.Chmod}, false},
		{"otherFile", fsnotify.Event{Name: filepath.Join(filepath.Dir(target), "notes.md"), Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDeckChange(tt.event, target); got != tt.want {
				t.Errorf("isDeckChange() = %v, want %v", got, tt.want)
			}
		})
	}
}
