package sidecar

import (
	"encoding/json"
	"fmt"
)

// Phase is the single active stage of an unfinished acquisition.
type Phase string

const (
	PhaseNone        Phase = ""
	PhaseDownloading Phase = "downloading"
	PhaseVerifying   Phase = "verifying"
	PhaseExtracting  Phase = "extracting"
	PhaseUpdating    Phase = "updating"
	PhaseStopped     Phase = "stopped"
	// PhaseFailed is the terminal state left by a failed verification.
	PhaseFailed Phase = "failed"
)

// Flag order doubles as decode precedence when a worker leaves several set.
var phaseFlags = []Phase{PhaseStopped, PhaseVerifying, PhaseExtracting, PhaseUpdating, PhaseDownloading}

type VerifyError struct {
	File         string `json:"file"`
	Error        string `json:"error"`
	ExpectedSize int64  `json:"expected_size"`
}

// State is the downloadingData object. On disk each phase is its own
// boolean so worker executables can keep reading it; in memory exactly
// one Phase is active.
type State struct {
	Phase                  Phase
	ProgressCompleted      string
	ProgressDownloadSpeeds string
	TimeUntilComplete      string
	VerifyErrors           []VerifyError

	extra map[string]json.RawMessage
}

var stateKnownKeys = map[string]struct{}{
	"downloading":            {},
	"verifying":              {},
	"extracting":             {},
	"updating":               {},
	"stopped":                {},
	"progressCompleted":      {},
	"progressDownloadSpeeds": {},
	"timeUntilComplete":      {},
	"verifyError":            {},
}

func StoppedState() *State {
	return &State{Phase: PhaseStopped}
}

// FailedState is the record verification leaves behind when members are
// missing. Progress reads as complete so the UI stops showing a transfer.
func FailedState(errs []VerifyError) *State {
	return &State{
		Phase:                  PhaseFailed,
		ProgressCompleted:      "100.00",
		ProgressDownloadSpeeds: "0.00 B/s",
		TimeUntilComplete:      "0s",
		VerifyErrors:           errs,
	}
}

func (s *State) UnmarshalJSON(payload []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return err
	}

	var wire struct {
		Downloading            bool          `json:"downloading"`
		Verifying              bool          `json:"verifying"`
		Extracting             bool          `json:"extracting"`
		Updating               bool          `json:"updating"`
		Stopped                bool          `json:"stopped"`
		ProgressCompleted      flexString    `json:"progressCompleted"`
		ProgressDownloadSpeeds flexString    `json:"progressDownloadSpeeds"`
		TimeUntilComplete      flexString    `json:"timeUntilComplete"`
		VerifyError            []VerifyError `json:"verifyError"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return err
	}

	set := map[Phase]bool{
		PhaseStopped:     wire.Stopped,
		PhaseVerifying:   wire.Verifying,
		PhaseExtracting:  wire.Extracting,
		PhaseUpdating:    wire.Updating,
		PhaseDownloading: wire.Downloading,
	}
	phase := PhaseNone
	for _, candidate := range phaseFlags {
		if set[candidate] {
			phase = candidate
			break
		}
	}
	if phase == PhaseNone && len(wire.VerifyError) > 0 {
		phase = PhaseFailed
	}

	s.Phase = phase
	s.ProgressCompleted = string(wire.ProgressCompleted)
	s.ProgressDownloadSpeeds = string(wire.ProgressDownloadSpeeds)
	s.TimeUntilComplete = string(wire.TimeUntilComplete)
	s.VerifyErrors = wire.VerifyError

	for key := range stateKnownKeys {
		delete(raw, key)
	}
	s.extra = raw
	return nil
}

func (s State) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.extra)+len(stateKnownKeys))
	for key, value := range s.extra {
		out[key] = value
	}
	for _, flag := range phaseFlags {
		out[string(flag)] = s.Phase == flag
	}
	if s.ProgressCompleted != "" {
		out["progressCompleted"] = s.ProgressCompleted
	}
	if s.ProgressDownloadSpeeds != "" {
		out["progressDownloadSpeeds"] = s.ProgressDownloadSpeeds
	}
	if s.TimeUntilComplete != "" {
		out["timeUntilComplete"] = s.TimeUntilComplete
	}
	if len(s.VerifyErrors) > 0 {
		out["verifyError"] = s.VerifyErrors
	}
	return json.Marshal(out)
}

// flexString accepts progress fields written either as strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(payload []byte) error {
	if string(payload) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(payload, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(payload))
	}
	*f = flexString(n.String())
	return nil
}
