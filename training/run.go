package training

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Run is one training run's output directory with its scoped logger. A
// directory is created once per controller instantiation and never reused
// across runs.
type Run struct {
	Dir    string
	ID     string
	Logger *logrus.Logger

	logFile *os.File
}

// NewRun creates a timestamped run directory under outputDir and a logger
// writing to both stderr and <dir>/selene.log.
func NewRun(outputDir string, verbosity int) (*Run, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	id := uuid.NewString()
	dir := filepath.Join(outputDir, time.Now().Format("2006-01-02-15-04-05"))
	if err := os.Mkdir(dir, 0o755); err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
		// Two runs started within the same second; disambiguate.
		dir = dir + "-" + id[:8]
		if err := os.Mkdir(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
	}

	logFile, err := os.Create(filepath.Join(dir, "selene.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.MultiWriter(os.Stderr, logFile))
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	switch {
	case verbosity >= 2:
		logger.SetLevel(logrus.DebugLevel)
	case verbosity == 1:
		logger.SetLevel(logrus.InfoLevel)
	default:
		logger.SetLevel(logrus.WarnLevel)
	}

	return &Run{
		Dir:     dir,
		ID:      id,
		Logger:  logger,
		logFile: logFile,
	}, nil
}

// Close releases the run's log file.
func (r *Run) Close() error {
	if r.logFile == nil {
		return nil
	}
	err := r.logFile.Close()
	r.logFile = nil
	return err
}
