package pipeline

import "fmt"

// Stage is the last step a document completed. Documents move strictly
// forward: EXTRACTED -> NORMALIZED -> VALIDATED -> ROUTED.
type Stage string

const (
	StageExtracted  Stage = "EXTRACTED"
	StageNormalized Stage = "NORMALIZED"
	StageValidated  Stage = "VALIDATED"
	StageRouted     Stage = "ROUTED"
)

var stageOrder = map[Stage]int{
	StageExtracted:  0,
	StageNormalized: 1,
	StageValidated:  2,
	StageRouted:     3,
}

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// IsValid checks if the stage is known
func (s Stage) IsValid() bool {
	_, ok := stageOrder[s]
	return ok
}

// CanTransitionTo reports whether next directly follows s
func (s Stage) CanTransitionTo(next Stage) bool {
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	to, ok := stageOrder[next]
	return ok && to == from+1
}

// IsTerminal reports whether the document finished the pipeline
func (s Stage) IsTerminal() bool {
	return s == StageRouted
}

// stageTracker enforces the linear stage order for one document
type stageTracker struct {
	current Stage
}

func newStageTracker() *stageTracker {
	return &stageTracker{current: StageExtracted}
}

func (t *stageTracker) advance(next Stage) error {
	if !t.current.CanTransitionTo(next) {
		return fmt.Errorf("invalid stage transition %s -> %s", t.current, next)
	}
	t.current = next
	return nil
}
