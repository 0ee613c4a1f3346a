package app

import (
	"strings"

	"github.com/atelierhq/atelier/pkg/logger"
)

// ConfigureLogging brings up the global logger. An empty level means info.
func ConfigureLogging(level string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	return logger.Init(level)
}
