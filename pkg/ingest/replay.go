package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// ReplayFile decodes every batch in path and applies it. It returns the
// number of batches applied before the first failure.
func ReplayFile(ctx context.Context, path string, a Applier, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	updates, err := DecodeUpdates(f)
	if err != nil {
		return 0, fmt.Errorf("replay %s: %w", path, err)
	}

	n, err := ApplyAll(ctx, a, updates)
	if err != nil {
		logger.Error("replay_failed", "path", path, "applied", n, "error", err)
		return n, fmt.Errorf("replay %s: %w", path, err)
	}
	logger.Info("replay_completed", "path", path, "batches", n)
	return n, nil
}
