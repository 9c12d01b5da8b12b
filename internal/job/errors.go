package job

import "errors"

var (
	// ErrNotFound is returned by lookups on unknown job or call IDs. It is a
	// normal negative result, not a fault.
	ErrNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when a stage transition is invoked against a
	// job that is already completed or failed. Callers must not retry.
	ErrJobTerminal = errors.New("job is terminal")

	// ErrAttemptsExhausted is returned by BeginStage when the current stage
	// has no attempts left. The caller must follow up with FailStage.
	ErrAttemptsExhausted = errors.New("stage attempts exhausted")

	// ErrStageMismatch is returned when CompleteStage names a stage that is
	// neither completed nor the active stage.
	ErrStageMismatch = errors.New("stage is not the active stage")
)
