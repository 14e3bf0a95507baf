package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/refmatch/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging initializes the logger to write to stdout and a log file.
// If logFile is empty, a timestamped filename is generated. The returned
// func closes the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	if logFile == "" {
		logFile = "seed_log_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(
		logger.WithWriter(io.MultiWriter(os.Stdout, file)),
		logger.WithAttrs(logger.String("tool", "seed")),
	); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}

	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file.Close, nil
}

// ShowHelp prints usage information for the seed tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`refmatch seed
=============

Registers a deterministic referee pool and game schedule against a running
refmatch service, runs a matching pass and checks every offer.

Usage:
  go run ./cmd/seed [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -referees int
        Number of referees to register (default 200)
  -games int
        Number of games to submit (default 500)
  -lat float, -lon float
        Center of the generated area (default 40.0, -75.0)
  -radius float
        Placement radius in km (default 40)
  -sports string
        Comma separated sports (default "soccer,basketball,baseball")
  -seed uint
        Generation seed; the same seed gives the same ids and places (default 1)
  -workers int
        Number of concurrent submitters (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Write the generated plan as JSON to this file
  -log string
        Log file (default: seed_log_TIMESTAMP.log)
  -verbose
        Log every submission
  -help
        Show this help message

Examples:
  # Seed a local service
  go run ./cmd/seed

  # A larger pool around Chicago, replayable via the saved plan
  go run ./cmd/seed -referees 2000 -games 5000 -lat 41.88 -lon -87.63 -output plan.json
`)
}
