package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"deckcraft/internal/app"
	"deckcraft/pkg/config"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var (
	watchSlides   string
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild a deck whenever its file changes",
	Long:  `Watch a deck file and run a fresh build each time it is saved.`,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSlides, "slides", "", "Deck file to watch (YAML or JSON)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Quiet period before rebuilding")
	_ = watchCmd.MarkFlagRequired("slides")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	target, err := filepath.Abs(watchSlides)
	if err != nil {
		return err
	}
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("deck file: %w", err)
	}
	cmd.SilenceUsage = true

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	service, err := app.BuildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	pipeline := app.NewPipeline(service)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	rebuild := func() {
		d, err := loadDeck(target, "", "", nil)
		if err != nil {
			slog.Error("Invalid deck file", "path", target, "error", err)
			return
		}
		if _, err := buildDeck(ctx, pipeline, d, cfg.GCS.Publish); err != nil {
			slog.Error("Build failed", "error", err)
		}
	}

	slog.Info("Watching deck", "path", target)
	rebuild()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var pending <-chan time.Time
	for {
		select {
		case <-sigChan:
			slog.Info("Shutting down...")
			return nil
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isDeckChange(event, target) {
				continue
			}
			slog.Debug("Deck file changed", "op", event.Op.String())
			pending = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", "error", err)
		case <-pending:
			pending = nil
			rebuild()
		}
	}
}

func isDeckChange(event fsnotify.Event, target string) bool {
	if filepath.Clean(event.Name) != target {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
