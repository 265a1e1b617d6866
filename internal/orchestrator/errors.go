package orchestrator

import (
	"context"
	"errors"

	"github.com/local/collager/internal/config"
	"github.com/local/collager/internal/discovery"
	"github.com/local/collager/internal/exporter"
	"github.com/local/collager/internal/imagerender"
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
	ExitDecode       = 3
	ExitWrite        = 4
	ExitInterrupted  = 130
)

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, discovery.ErrInvalidInput), errors.Is(err, config.ErrUsage):
		return ExitInvalidInput
	case errors.Is(err, imagerender.ErrDecode):
		return ExitDecode
	case errors.Is(err, exporter.ErrWrite):
		return ExitWrite
	}
	return ExitFailure
}
