package config

import (
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogging configures the standard logrus logger from c. When a log file
// is configured output goes to a size-rotated file and the returned closer
// must be closed on shutdown.
func SetupLogging(c Config) (io.Closer, error) {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", c.LogLevel)
	}
	log.SetLevel(level)

	if c.LogFile == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}

	w := &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
	}
	log.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	log.SetOutput(w)
	return w, nil
}
