// Package logging configures the process-wide logrus logger.
package logging

import (
	"os"
	"strings"

	"github.com/shorttrack/apiserver/config"
	log "github.com/sirupsen/logrus"
)

// Setup applies level and format from cfg. Unknown levels fall back to info
// and any format other than "json" is text.
func Setup(cfg config.LogConfig) {
	log.SetOutput(os.Stdout)

	level, err := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
