package workers

import (
	"github.com/kirin-w/timelinebackend/config"
	"github.com/kirin-w/timelinebackend/utils"
)

// buildTimelineZip wraps the zip helper with the configured storage roots.
func buildTimelineZip(cfg config.Config, photoRelPaths []string) (string, int64, error) {
	return utils.CreateTimelineZip(cfg.MediaStoragePath, photoRelPaths, cfg.ArchivesPath)
}
