package pipeline

import "fmt"

// Stage names one step of the pipeline for error reporting.
type Stage string

const (
	StageExtract   Stage = "factor extraction"
	StageAdvocate  Stage = "advocate argument"
	StageSkeptic   Stage = "skeptic counter"
	StageSynthesis Stage = "debate synthesis"
	StageReport    Stage = "report assembly"
)

// StageError records which step failed. FactorIndex is 1-based and zero for
// steps that are not tied to a factor.
type StageError struct {
	Stage       Stage
	FactorIndex int
	FactorName  string
	Err         error
}

func (e *StageError) Error() string {
	if e.FactorIndex > 0 {
		return fmt.Sprintf("%s failed on factor %d (%s): %v", e.Stage, e.FactorIndex, e.FactorName, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
