package loop

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"devloop/pkg/config"
	"devloop/pkg/logx"
)

// Idle maintenance: small housekeeping actions run when the queue is empty,
// so quiet periods still produce some upkeep.

type maintenanceAction struct {
	name string
	run  func(logger *logx.Logger)
}

func maintenanceActions() []maintenanceAction {
	return []maintenanceAction{
		{name: "doc_retention_sweep", run: sweepOldDocs},
		{name: "temp_file_scan", run: scanTempFiles},
		{name: "log_error_scan", run: scanRecentLogErrors},
	}
}

// runIdleMaintenance executes one randomly chosen action and returns its name.
func runIdleMaintenance(logger *logx.Logger) string {
	actions := maintenanceActions()
	action := actions[rand.Intn(len(actions))]
	logger.Debug("Idle maintenance: %s", action.name)
	action.run(logger)
	return action.name
}

// sweepOldDocs deletes archived transcripts older than the retention window.
func sweepOldDocs(logger *logx.Logger) {
	retention := config.Get().DocRetentionDays
	if retention <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retention)

	removed := 0
	_ = filepath.Walk(config.DocsDir(), func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil //nolint:nilerr // missing docs dir is fine
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	if removed > 0 {
		logger.Info("Doc retention sweep removed %d files older than %d days", removed, retention)
	}
}

// scanTempFiles reports stray editor and temp files under the data dir.
func scanTempFiles(logger *logx.Logger) {
	var stray []string
	_ = filepath.Walk(config.DataDir(), func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil //nolint:nilerr
		}
		name := info.Name()
		if strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp") {
			stray = append(stray, path)
		}
		return nil
	})
	if len(stray) > 0 {
		logger.Warn("Found %d stray temp files under %s", len(stray), config.DataDir())
	}
}

// scanRecentLogErrors counts error entries in the last hour of buffered logs.
func scanRecentLogErrors(logger *logx.Logger) {
	entries := logx.RecentEntries(time.Now().Add(-time.Hour))
	errorCount := 0
	for i := range entries {
		if entries[i].Level == string(logx.LevelError) {
			errorCount++
		}
	}
	if errorCount > 0 {
		logger.Info("Log scan: %d error entries in the last hour", errorCount)
	}
}
