// internal/infra/logger/logger.go
package logger

import (
	"io"
	"os"
	"strings"

	"maintenance_scheduler/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// TimestampFormat is also the layout retention cleanup parses back out of log lines.
const TimestampFormat = "2006-01-02 15:04:05"

// Log is the global logger instance
var Log = logrus.New()

// Init initializes the global logger based on application configuration.
// When logFile is non-empty the log is also appended to that file, without colors,
// and the returned FileWriter must be closed by the caller.
func Init(cfg *config.AppConfig, logFile string) (*FileWriter, error) {
	var out io.Writer = os.Stdout
	var fw *FileWriter

	if logFile != "" {
		var err error
		fw, err = OpenFileWriter(logFile)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stdout, fw)
	}
	Log.SetOutput(out)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		Log.Warnf("Invalid log level '%s', defaulting to 'info'. Error: %v", cfg.LogLevel, err)
		Log.SetLevel(logrus.InfoLevel)
	} else {
		Log.SetLevel(level)
	}

	if cfg.Environment == "production" || cfg.Environment == "staging" {
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: TimestampFormat,
		})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: TimestampFormat,
			DisableColors:   logFile != "",
		})
	}

	Log.Debugf("Log level set to: %s", Log.GetLevel().String())
	Log.Debugf("Log format set for environment: %s", cfg.Environment)
	return fw, nil
}

// Get returns the configured global logger.
func Get() *logrus.Logger {
	return Log
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
