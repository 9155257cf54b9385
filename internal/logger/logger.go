package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
)

// LineFormatter formats log messages as single human-readable lines:
// 2025-05-30 12:21:53,426 - INFO - Synced batch batch=1 created=10
type LineFormatter struct{}

// Format formats a logrus entry, appending structured fields as sorted key=value pairs
func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	timestamp := entry.Time.Format("2006-01-02 15:04:05,000")
	fmt.Fprintf(&b, "%s - %s - %s", timestamp, levelName(entry.Level), entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for key := range entry.Data {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			value := entry.Data[key]
			if err, ok := value.(error); ok {
				value = err.Error()
			}
			fmt.Fprintf(&b, " %s=%v", key, value)
		}
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelName(level logrus.Level) string {
	switch level {
	case logrus.TraceLevel:
		return "TRACE"
	case logrus.DebugLevel:
		return "DEBUG"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARNING"
	case logrus.ErrorLevel:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}

// Setup configures the logger writing to stdout
func Setup(logLevel string, testMode bool) *logrus.Logger {
	return SetupWithOutput(os.Stdout, logLevel, testMode)
}

// SetupWithOutput configures the logger writing to out
func SetupWithOutput(out io.Writer, logLevel string, testMode bool) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&LineFormatter{})
	logger.SetOutput(out)

	logger.Info("Starting Marketo lead sync")

	if testMode {
		logger.Info("TEST MODE ENABLED - No leads will be written to Marketo")
	}

	return logger
}

// LogProcessStart logs the start of processing with source information
func LogProcessStart(logger logrus.FieldLogger, source string, logLevel string) {
	logger.Infof("Configured to sync leads from %s", source)
	logger.Infof("Logging enabled at %s level", logLevel)
}
