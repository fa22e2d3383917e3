package pipeline

import "fmt"

// Stage is a state of the pipeline. Stages advance strictly in declaration
// order; any failure moves to StageFailed.
type Stage int

const (
	StageUninitialized Stage = iota
	StagePlatformSelected
	StageDeviceSelected
	StageContextReady
	StageProgramBuilt
	StageKernelReady
	StageBuffersAllocated
	StageArgsBound
	StageDispatched
	StageResultsRetrieved
	StageReleased
	StageFailed
)

var stageNames = [...]string{
	StageUninitialized:    "Uninitialized",
	StagePlatformSelected: "PlatformSelected",
	StageDeviceSelected:   "DeviceSelected",
	StageContextReady:     "ContextReady",
	StageProgramBuilt:     "ProgramBuilt",
	StageKernelReady:      "KernelReady",
	StageBuffersAllocated: "BuffersAllocated",
	StageArgsBound:        "ArgsBound",
	StageDispatched:       "Dispatched",
	StageResultsRetrieved: "ResultsRetrieved",
	StageReleased:         "Released",
	StageFailed:           "Failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// StageError reports the transition that failed. Stage is the state the
// pipeline was trying to reach.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
