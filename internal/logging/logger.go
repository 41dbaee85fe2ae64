package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewJobLogger creates a logger for a pipeline job. Output goes to one file
// per job under logDir and, when attached to a terminal, also to stderr with
// console formatting.
func NewJobLogger(jobName, logDir, level string) (zerolog.Logger, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	switch envOr(level, os.Getenv("LOG_LEVEL")) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	writers := []io.Writer{}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to create log directory: %w", err)
		}
		path := filepath.Join(logDir, jobName+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
	}

	if isInteractive() {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("job", jobName).
		Logger()

	log.Logger = logger
	return logger, nil
}

func envOr(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}

func isInteractive() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
