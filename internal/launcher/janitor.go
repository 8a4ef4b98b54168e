package launcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupFinished drops finished runs that started more than maxAge ago.
// Running automations are never dropped. Returns how many were removed.
func (m *Manager) CleanupFinished(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, r := range m.runs {
		if r.status != StatusRunning && r.startTime.Before(cutoff) {
			delete(m.runs, id)
			removed++
		}
	}
	if removed > 0 {
		m.log.Info().Int("removed", removed).Msg("cleaned up finished automations")
	}
	return removed
}

// RunJanitor periodically prunes old finished runs and stale scratch files
// until ctx is canceled. scratchDir may be empty to skip the file sweep.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration, scratchDir string) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.CleanupFinished(time.Hour)
			if scratchDir != "" {
				n, err := SweepScratch(scratchDir, 24*time.Hour)
				if err != nil {
					m.log.Warn().Err(err).Msg("scratch sweep failed")
				} else if n > 0 {
					m.log.Info().Int("removed", n).Msg("swept stale scratch files")
				}
			}
		}
	}
}

// SweepScratch deletes captcha and screenshot scratch files older than
// maxAge. Other files in the directory are left alone.
func SweepScratch(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !scratchFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func scratchFile(name string) bool {
	return strings.HasPrefix(name, "captcha-") ||
		strings.HasPrefix(name, "confirmation-") ||
		strings.HasSuffix(name, ".ocr.png")
}
