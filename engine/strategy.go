package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deckflow/deckflow-go/deckflow"
)

// Strategy is one way of executing an operation. Strategies are tried
// in order; the first whose result reports success wins.
type Strategy struct {
	Name deckflow.ExecutionMode
	Run  func(ctx context.Context) (*deckflow.OperationResult, error)
}

// AllFailedError combines the failures of every attempted strategy.
type AllFailedError struct {
	Attempts map[deckflow.ExecutionMode]error
}

func (e *AllFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for mode, err := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", mode, err))
	}
	return "all strategies failed: " + strings.Join(parts, "; ")
}

// RunStrategies executes strategies in order until one succeeds. The
// returned result is labeled with the mode that produced it; when a
// later strategy wins, FallbackUsed is set and FallbackReason names the
// first failure. When every strategy fails, the last failing result is
// returned together with an AllFailedError.
func RunStrategies(ctx context.Context, logger *slog.Logger, strategies []Strategy) (*deckflow.OperationResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	attempts := make(map[deckflow.ExecutionMode]error, len(strategies))
	var firstFailure string
	var lastResult *deckflow.OperationResult

	for i, s := range strategies {
		result, err := s.Run(ctx)
		if err == nil && result != nil && result.Success {
			result.Mode = s.Name
			if i > 0 {
				result.FallbackUsed = true
				result.FallbackReason = firstFailure
			}
			return result, nil
		}

		failure := err
		if failure == nil {
			failure = fmt.Errorf("strategy %s reported failure: %s", s.Name, joinErrors(result))
		}
		attempts[s.Name] = failure
		if firstFailure == "" {
			firstFailure = fmt.Sprintf("%s failed: %v", s.Name, failure)
		}
		if result != nil {
			lastResult = result
		}
		logger.Warn("strategy failed, trying next",
			"strategy", string(s.Name), "error", failure)
	}

	allErr := &AllFailedError{Attempts: attempts}
	if lastResult != nil {
		lastResult.Success = false
		return lastResult, allErr
	}
	return nil, allErr
}

func joinErrors(result *deckflow.OperationResult) string {
	if result == nil || len(result.Errors) == 0 {
		return "no detail"
	}
	return strings.Join(result.Errors, "; ")
}
