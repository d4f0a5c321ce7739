package cmd

import (
	"fmt"
	"os"
	"strings"

	"deckcraft/internal/deck"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Interactive wizard for a new deck file",
	Long:  `Ask for a name, style and slide outline and write a starter deck file.`,
	RunE:  runNew,
}

func init() {
	rootCmd.AddCommand(newCmd)
}

var slideTypeOptions = []huh.Option[string]{
	huh.NewOption("Title", string(deck.TypeTitle)).Selected(true),
	huh.NewOption("Content", string(deck.TypeContent)).Selected(true),
	huh.NewOption("Data (chart placeholder)", string(deck.TypeData)).Selected(true),
	huh.NewOption("Features", string(deck.TypeFeatures)).Selected(true),
	huh.NewOption("Closing", string(deck.TypeClosing)).Selected(true),
}

func runNew(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("Deckcraft: new deck"))

	var (
		name  string
		style string
		types []string
		path  = "deck.yaml"
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Deck name").
				Value(&name).
				Validate(required("Deck name")),
			huh.NewText().
				Title("Visual style").
				Description("Palette, texture, mood. Every background follows it.").
				Value(&style).
				Validate(required("Visual style")),
		),
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Slides").
				Options(slideTypeOptions...).
				Value(&types).
				Validate(func(v []string) error {
					if len(v) == 0 {
						return fmt.Errorf("pick at least one slide")
					}
					return nil
				}),
			huh.NewInput().
				Title("Deck file").
				Value(&path).
				Validate(required("Deck file")),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	path = strings.TrimSpace(path)
	if _, err := os.Stat(path); err == nil {
		var overwrite bool
		if err := huh.NewConfirm().
			Title(fmt.Sprintf("Found existing %s", path)).
			Description("Overwrite?").
			Value(&overwrite).
			Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println(infoStyle.Render("Kept existing " + path))
			return nil
		}
	}

	d := starterWithTypes(strings.TrimSpace(name), strings.TrimSpace(style), types)
	if err := d.Save(path); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Wrote %s with %d slides", path, len(d.Slides))))

	printNextSteps(path)
	return nil
}

// starterWithTypes keeps the starter slides whose type was picked, in
// starter order.
func starterWithTypes(name, style string, types []string) *deck.Deck {
	picked := make(map[deck.SlideType]bool, len(types))
	for _, t := range types {
		picked[deck.SlideType(t)] = true
	}

	d := deck.Starter(name, style)
	slides := d.Slides[:0]
	for _, s := range d.Slides {
		if picked[s.Type] {
			slides = append(slides, s)
		}
	}
	d.Slides = slides
	return d
}

func printNextSteps(path string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("Next steps:"))
	fmt.Println("  1. Edit the slide text in " + path)
	fmt.Println("  2. Check the credential: deckcraft auth status")
	fmt.Println("  3. Run: deckcraft build --slides " + path)
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func runWithSpinner(title string, fn func() error) error {
	var err error
	_ = spinner.New().
		Title(title).
		Action(func() { err = fn() }).
		Run()
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ " + title))
	return nil
}
