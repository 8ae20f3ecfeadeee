// Package rlog configures the single structured logger used for internal
// diagnostics: actions being built and run, and targets clean mode could
// not remove. It is a side channel, never consulted by build logic for
// decisions.
package rlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger configured from the environment. When verbose is
// true (or REMAKE_DEBUG=1), diagnostics go to stderr at debug level, or
// at REMAKE_LOG_LEVEL if set; otherwise they are all discarded, matching
// a CLI tool's default quiet posture.
func New(verbose bool) *logrus.Entry {
	var log *logrus.Logger
	if verbose || os.Getenv("REMAKE_DEBUG") == "1" {
		log = newVerboseLogger()
	} else {
		log = newQuietLogger()
	}

	return log.WithFields(logrus.Fields{
		"component": "remake",
	})
}

func levelFromEnv(fallback logrus.Level) logrus.Level {
	strLevel := os.Getenv("REMAKE_LOG_LEVEL")
	if strLevel == "" {
		return fallback
	}
	level, err := logrus.ParseLevel(strLevel)
	if err != nil {
		return fallback
	}
	return level
}

func newVerboseLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.SetLevel(levelFromEnv(logrus.DebugLevel))
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	return log
}

func newQuietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	log.SetLevel(levelFromEnv(logrus.ErrorLevel))
	return log
}
