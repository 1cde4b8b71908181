package client

import (
	"errors"

	"github.com/OmJan/aiopg/internal/driver"
	"github.com/OmJan/aiopg/internal/queries"
)

// Exit codes of the run command. The orchestrator skips a variation on
// ExitUnsupported and aborts on any other non-zero code.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitUnsupported = 3
)

var ErrUsage = errors.New("usage error")

// ExitCode maps a run error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, queries.ErrUnsupported):
		return ExitUnsupported
	case errors.Is(err, ErrUsage),
		errors.Is(err, driver.ErrUnknownDriver),
		errors.Is(err, queries.ErrUnknownQuery):
		return ExitUsage
	default:
		return ExitFailure
	}
}
