package store

import (
	"errors"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

// Cleanup retires every data file that neither the current nor the previous
// manifest references: leftovers of interrupted writes and files of
// superseded generations. Files still pinned by a reader are deleted when the
// reader releases them. It returns the files deleted immediately.
func Cleanup(dir Directory, logger *slog.Logger) ([]string, error) {
	keep := make(map[string]struct{})
	m, err := dir.ReadManifest()
	switch {
	case err == nil:
		for _, f := range m.Files() {
			keep[f] = struct{}{}
		}
		if m.PreviousGeneration > 0 {
			prev, perr := dir.ReadManifestGeneration(m.PreviousGeneration)
			if perr == nil {
				for _, f := range prev.Files() {
					keep[f] = struct{}{}
				}
			}
		}
	case errors.Is(err, apperrors.ErrNotFound):
	default:
		return nil, err
	}

	files, err := dir.ListSegmentFiles()
	if err != nil {
		return nil, err
	}
	var orphans []string
	for _, f := range files {
		if _, ok := keep[f]; !ok {
			orphans = append(orphans, f)
		}
	}
	if len(orphans) == 0 {
		return nil, nil
	}
	deleted := dir.Refs().Retire(orphans...)
	logger.Info("orphan cleanup complete",
		"location", dir.String(),
		"orphans", len(orphans),
		"deleted", len(deleted),
		"deferred", len(orphans)-len(deleted),
	)
	return deleted, nil
}
