package cmd

import (
	"fmt"

	"deckcraft/internal/storage"
	"deckcraft/pkg/config"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var (
	cleanKeep int
	cleanYes  bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old builds",
	Long:  `Remove build directories from the output directory, oldest first.`,
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().IntVarP(&cleanKeep, "keep", "k", 0, "Number of most recent builds to keep")
	cleanCmd.Flags().BoolVarP(&cleanYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store := storage.NewLocalStorage(cfg.Deck.OutputDir)
	builds, err := store.ListBuilds()
	if err != nil {
		return err
	}

	remove := buildsToRemove(builds, cleanKeep)
	if len(remove) == 0 {
		fmt.Println(infoStyle.Render("Nothing to clean"))
		return nil
	}

	if !cleanYes {
		var confirm bool
		if err := huh.NewConfirm().
			Title(fmt.Sprintf("Remove %d build(s) from %s?", len(remove), store.OutputDir())).
			Value(&confirm).
			Run(); err != nil {
			return err
		}
		if !confirm {
			return nil
		}
	}

	if err := store.RemoveBuilds(remove); err != nil {
		return err
	}

	fmt.Printf("Removed %d build(s)\n", len(remove))
	return nil
}

// buildsToRemove expects builds oldest first.
func buildsToRemove(builds []string, keep int) []string {
	if keep < 0 {
		keep = 0
	}
	if keep >= len(builds) {
		return nil
	}
	return builds[:len(builds)-keep]
}
