package app

import (
	"log/slog"
	"time"

	"deckcraft/internal/storage"
)

// State tracks how far a build got. Phases only move forward; files written
// by earlier phases stay on disk when a later phase fails.
type State int

const (
	StateInit State = iota
	StateBackgroundsReady
	StateMarkupReady
	StateAssembled
	StateDone
)

var stateNames = [...]string{
	StateInit:             "init",
	StateBackgroundsReady: "backgrounds_ready",
	StateMarkupReady:      "markup_ready",
	StateAssembled:        "assembled",
	StateDone:             "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

type session struct {
	dir     *storage.BuildDir
	state   State
	started time.Time
}

func newSession(store *storage.LocalStorage, name string, now time.Time) (*session, error) {
	dir, err := store.NewBuildDir(name, now)
	if err != nil {
		return nil, err
	}
	return &session{dir: dir, started: now}, nil
}

func (s *session) advance(next State) {
	if next != s.state+1 {
		slog.Warn("Unexpected build transition", "from", s.state, "to", next)
	}
	slog.Debug("Build phase complete", "state", next, "elapsed", time.Since(s.started).Round(time.Millisecond))
	s.state = next
}
