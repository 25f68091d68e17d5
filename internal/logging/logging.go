package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/config"
)

// New builds the process logger. JSON output is the default outside dev.
func New(cfg config.Config) *logrus.Logger {
	return newLogger(os.Stdout, cfg.Env, cfg.Log)
}

func newLogger(out io.Writer, env string, cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format == "" {
		format = "json"
		if env == "dev" {
			format = "text"
		}
	}
	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
