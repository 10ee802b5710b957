package status

import (
	"fmt"
	"time"
)

// Phase is the lifecycle position of an indexing run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhasePaused    Phase = "paused"
	PhaseCompleted Phase = "completed"
	PhaseStopped   Phase = "stopped"
	PhaseFailed    Phase = "failed"
)

// Mode selects full or incremental indexing.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// MaxLogEntries is the capacity of State.LogMessages.
const MaxLogEntries = 100

// State is the persisted record of the current or last indexing run.
type State struct {
	IsIndexing     bool      `json:"is_indexing"`
	IsPaused       bool      `json:"is_paused"`
	PID            int       `json:"pid,omitempty"`
	TotalFiles     int64     `json:"total_files"`
	ProcessedFiles int64     `json:"processed_files"`
	SubtitleCount  int64     `json:"subtitle_count"`
	CurrentFile    string    `json:"current_file"`
	LogMessages    []string  `json:"log_messages"`
	StartTime      time.Time `json:"start_time,omitzero"`
	LastUpdated    time.Time `json:"last_updated,omitzero"`
	LastError      string    `json:"last_error,omitempty"`
	RetryCount     int       `json:"retry_count"`
	StatusMessage  string    `json:"status_message,omitempty"`
	Phase          Phase     `json:"phase"`
	Mode           Mode      `json:"mode,omitempty"`
	Strategy       string    `json:"strategy,omitempty"`
}

// Default returns the idle state used for a fresh or corrupt status file.
func Default() State {
	return State{
		Phase:       PhaseIdle,
		LogMessages: []string{},
	}
}

func (s State) clone() State {
	s.LogMessages = append([]string(nil), s.LogMessages...)
	return s
}

// Snapshot is State plus values derived at read time.
type Snapshot struct {
	State
	ProgressPercent int    `json:"progress_percent"`
	ETASeconds      int64  `json:"eta_seconds,omitempty"`
	ETA             string `json:"eta,omitempty"`
}

// NewSnapshot derives progress and the estimated time to completion from
// the average time per processed file.
func NewSnapshot(st State, now time.Time) Snapshot {
	snap := Snapshot{State: st}

	if st.TotalFiles > 0 {
		snap.ProgressPercent = int(min(100, st.ProcessedFiles*100/st.TotalFiles))
	} else if st.Phase == PhaseCompleted {
		snap.ProgressPercent = 100
	}

	if !st.IsIndexing || st.ProcessedFiles <= 0 || st.TotalFiles <= 0 || st.StartTime.IsZero() {
		return snap
	}

	elapsed := now.Sub(st.StartTime)
	remaining := st.TotalFiles - st.ProcessedFiles
	if elapsed <= 0 || remaining < 0 {
		return snap
	}

	eta := time.Duration(float64(elapsed) / float64(st.ProcessedFiles) * float64(remaining))
	snap.ETASeconds = int64(eta.Seconds())
	snap.ETA = FormatClock(eta)
	return snap
}

// FormatClock renders d as HH:MM:SS.
func FormatClock(d time.Duration) string {
	secs := int64(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}
