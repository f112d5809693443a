package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Phase names the last completed step of an update cycle.
type Phase string

const (
	PhaseDownloaded Phase = "downloaded"
	// PhaseStaging is written before preserved content starts moving. Finding
	// it on the next run means staging was interrupted midway.
	PhaseStaging   Phase = "staging"
	PhaseStaged    Phase = "staged"
	PhaseWiped     Phase = "wiped"
	PhaseUnpacked  Phase = "unpacked"
	PhaseVersioned Phase = "versioned"
	PhaseRestoring Phase = "restoring"
	// PhaseRestorePending means the new build is installed but some preserved
	// content is still only in the staging area.
	PhaseRestorePending Phase = "restore_pending"
	PhaseDone           Phase = "done"
)

// State is the persisted phase marker of the current or last update cycle.
type State struct {
	Phase         Phase     `json:"phase"`
	CycleID       string    `json:"cycle_id,omitempty"`
	RemoteVersion string    `json:"remote_version,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Finished reports whether the cycle ran to completion.
func (s *State) Finished() bool {
	return s == nil || s.Phase == PhaseDone
}

// LoadState reads the phase marker at path. A missing marker yields nil and
// no error.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt state file %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the marker atomically so a crash never leaves a torn file.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".update-state-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
