package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"deckcraft/internal/app"
	"deckcraft/internal/deck"
	"deckcraft/pkg/config"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

var (
	buildName    string
	buildStyle   string
	buildRefs    []string
	buildOutput  string
	buildSlides  string
	buildOpen    bool
	buildPublish bool
)

var errMissingDeckFields = errors.New("--name and --style are required")

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a deck",
	Long: `Build a PDF deck from a deck file or from --name and --style alone.
Flags override values from the deck file.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildName, "name", "n", "", "Deck name")
	buildCmd.Flags().StringVarP(&buildStyle, "style", "s", "", "Visual style description")
	buildCmd.Flags().StringSliceVarP(&buildRefs, "refs", "r", nil, "Comma-separated style reference images, directories or gs:// paths")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Output directory (default from config)")
	buildCmd.Flags().StringVar(&buildSlides, "slides", "", "Deck file (YAML or JSON)")
	buildCmd.Flags().BoolVar(&buildOpen, "open", false, "Open the deck when done")
	buildCmd.Flags().BoolVar(&buildPublish, "publish", false, "Upload the deck to GCS when done")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	d, err := loadDeck(buildSlides, buildName, buildStyle, buildRefs)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if buildOutput != "" {
		cfg.Deck.OutputDir = buildOutput
	}

	service, err := app.BuildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	result, err := buildDeck(ctx, app.NewPipeline(service), d, buildPublish || cfg.GCS.Publish)
	if err != nil {
		return err
	}

	if buildOpen {
		if err := browser.OpenFile(result.DeckPath); err != nil {
			slog.Warn("Failed to open deck", "path", result.DeckPath, "error", err)
		}
	}
	return nil
}

// loadDeck reads the deck file when given, else starts from the starter
// deck, then applies flag overrides.
func loadDeck(path, name, style string, refs []string) (*deck.Deck, error) {
	var d *deck.Deck
	if path != "" {
		loaded, err := deck.Load(path)
		if err != nil {
			return nil, err
		}
		d = loaded
	} else {
		d = deck.Starter(name, style)
	}

	if name != "" {
		d.Name = name
	}
	if style != "" {
		d.Style = style
	}
	if len(refs) > 0 {
		d.Refs = trimAll(refs)
	}

	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Style) == "" {
		return nil, errMissingDeckFields
	}
	return d, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func buildDeck(ctx context.Context, pipeline *app.Pipeline, d *deck.Deck, publish bool) (*app.BuildResult, error) {
	result, err := pipeline.Build(ctx, app.BuildRequest{Deck: d})
	if err != nil {
		if result != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("✗ Build stopped at %s, files kept in %s", result.State, result.Dir)))
		}
		return result, err
	}

	printSummary(result)

	if publish {
		urls, err := pipeline.Publish(ctx, result)
		if err != nil {
			fmt.Println(errorStyle.Render("✗ Publish failed"))
			return result, err
		}
		for _, url := range urls {
			fmt.Println(successStyle.Render("✓ Published " + url))
		}
	}
	return result, nil
}

func printSummary(result *app.BuildResult) {
	fmt.Println()
	fmt.Println(successStyle.Render("✓ Deck built: " + result.DeckPath))

	total := len(result.Backgrounds)
	if n := result.Backgrounds.Fallbacks(); n > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("  %d of %d backgrounds are local fallbacks", n, total)))
	} else {
		fmt.Println(infoStyle.Render(fmt.Sprintf("  %d generated backgrounds", total)))
	}
	if len(result.Skipped) > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("  Skipped slides: %v", result.Skipped)))
	}
	for _, p := range result.Placeholders {
		fmt.Println(infoStyle.Render(fmt.Sprintf("  Placeholder %s on page %d", p.ID, p.Page)))
	}
	if result.ThumbnailPath != "" {
		fmt.Println(infoStyle.Render("  Thumbnails: " + result.ThumbnailPath))
	}
}
