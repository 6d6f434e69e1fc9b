package sidecar

import (
	"encoding/json"
)

// Record is the per-item sidecar. Fields the worker writes that are not
// modelled here survive a read-modify-write untouched.
type Record struct {
	Game       string
	Online     bool
	DLC        bool
	IsVR       bool
	Version    string
	Size       string
	Executable string
	IsRunning  bool
	GameID     string

	// Downloading is the downloadingData object, non-nil while the item
	// is not in a stable state.
	Downloading *State

	raw  map[string]json.RawMessage
	orig knownFields
}

type knownFields struct {
	Game       flexString `json:"game"`
	Online     bool       `json:"online"`
	DLC        bool       `json:"dlc"`
	IsVR       bool       `json:"isVr"`
	Version    flexString `json:"version"`
	Size       flexString `json:"size"`
	Executable flexString `json:"executable"`
	IsRunning  bool       `json:"isRunning"`
	GameID     flexString `json:"gameID"`
}

// Stable reports whether acquisition finished and verified.
func (r *Record) Stable() bool {
	return r.Downloading == nil
}

func (r *Record) known() knownFields {
	return knownFields{
		Game:       flexString(r.Game),
		Online:     r.Online,
		DLC:        r.DLC,
		IsVR:       r.IsVR,
		Version:    flexString(r.Version),
		Size:       flexString(r.Size),
		Executable: flexString(r.Executable),
		IsRunning:  r.IsRunning,
		GameID:     flexString(r.GameID),
	}
}

func (r *Record) UnmarshalJSON(payload []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return err
	}

	var fields knownFields
	if err := json.Unmarshal(payload, &fields); err != nil {
		return err
	}

	var state *State
	if data, ok := raw["downloadingData"]; ok && string(data) != "null" {
		state = &State{}
		if err := json.Unmarshal(data, state); err != nil {
			return err
		}
	}
	delete(raw, "downloadingData")

	*r = Record{
		Game:        string(fields.Game),
		Online:      fields.Online,
		DLC:         fields.DLC,
		IsVR:        fields.IsVR,
		Version:     string(fields.Version),
		Size:        string(fields.Size),
		Executable:  string(fields.Executable),
		IsRunning:   fields.IsRunning,
		GameID:      string(fields.GameID),
		Downloading: state,
		raw:         raw,
		orig:        fields,
	}
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.raw)+10)
	for key, value := range r.raw {
		out[key] = value
	}

	// Untouched fields keep their original encoding; changed or newly set
	// ones are written typed.
	cur := r.known()
	put := func(key string, value any, changed bool, zero bool) {
		_, had := r.raw[key]
		if changed && (had || !zero) {
			out[key] = value
		} else if !had && !zero {
			out[key] = value
		}
	}
	put("game", r.Game, cur.Game != r.orig.Game, r.Game == "")
	put("online", r.Online, cur.Online != r.orig.Online, !r.Online)
	put("dlc", r.DLC, cur.DLC != r.orig.DLC, !r.DLC)
	put("isVr", r.IsVR, cur.IsVR != r.orig.IsVR, !r.IsVR)
	put("version", r.Version, cur.Version != r.orig.Version, r.Version == "")
	put("size", r.Size, cur.Size != r.orig.Size, r.Size == "")
	put("executable", r.Executable, cur.Executable != r.orig.Executable, r.Executable == "")
	put("isRunning", r.IsRunning, cur.IsRunning != r.orig.IsRunning, !r.IsRunning)
	put("gameID", r.GameID, cur.GameID != r.orig.GameID, r.GameID == "")

	if r.Downloading != nil {
		out["downloadingData"] = r.Downloading
	}
	return json.Marshal(out)
}
