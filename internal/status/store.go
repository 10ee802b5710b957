package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"subtitle-indexer/internal/logging"
)

// FileName is the status file created under the data directory.
const FileName = "indexing_status.json"

const (
	DefaultDebounce  = time.Second
	DefaultHeartbeat = 30 * time.Second
	// StaleAfter is how long a run may go without a heartbeat before it is
	// considered dead.
	StaleAfter = 5 * time.Minute
)

// Options configures a Store. Zero values take the defaults.
type Options struct {
	Debounce  time.Duration
	Heartbeat time.Duration
}

// Store holds the indexing State in memory and persists it as JSON.
// Writes are debounced, atomic (temp file plus rename), and serialized
// across processes with a lock file next to the status file.
type Store struct {
	path string
	lock *flock.Flock
	opts Options

	mu       sync.RWMutex
	state    State
	lastSave time.Time
	timer    *time.Timer

	saveMu sync.Mutex

	heartbeatMu   sync.Mutex
	heartbeatStop chan struct{}

	now func() time.Time
}

// NewStore loads the status file at path, or starts from Default when it
// is missing or unreadable.
func NewStore(path string, opts *Options) *Store {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = DefaultHeartbeat
	}

	s := &Store{
		path: path,
		lock: flock.New(path + ".lock"),
		opts: o,
		now:  time.Now,
	}
	s.state = s.load()
	return s
}

// Path returns the status file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Error("Failed to read status file %s: %v", s.path, err)
		}
		return Default()
	}

	st := Default()
	if err := json.Unmarshal(data, &st); err != nil {
		logging.Error("Corrupt status file %s, resetting: %v", s.path, err)
		return Default()
	}
	if st.LogMessages == nil {
		st.LogMessages = []string{}
	}
	if st.Phase == "" {
		st.Phase = PhaseIdle
	}
	return st
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Snapshot returns the current state with derived progress and ETA.
func (s *Store) Snapshot() Snapshot {
	return NewSnapshot(s.Get(), s.now())
}

// Update applies fn to the state and schedules a debounced save.
func (s *Store) Update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	due := s.now().Sub(s.lastSave) >= s.opts.Debounce
	if !due && s.timer == nil {
		wait := s.opts.Debounce - s.now().Sub(s.lastSave)
		s.timer = time.AfterFunc(wait, func() {
			if err := s.Flush(); err != nil {
				logging.Error("Failed to save indexing status: %v", err)
			}
		})
	}
	s.mu.Unlock()

	if due {
		if err := s.Flush(); err != nil {
			logging.Error("Failed to save indexing status: %v", err)
		}
	}
}

// UpdateNow applies fn to the state and saves immediately.
func (s *Store) UpdateNow(fn func(*State)) error {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
	return s.Flush()
}

// Log prepends a timestamped line to the run log and forwards it to the
// process logger.
func (s *Store) Log(level logging.LogLevel, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logging.Log(level, "%s", msg)

	entry := fmt.Sprintf("[%s] %s: %s", s.now().Format("15:04:05"), strings.ToUpper(level.String()), msg)
	s.Update(func(st *State) {
		st.LogMessages = append([]string{entry}, st.LogMessages...)
		if len(st.LogMessages) > MaxLogEntries {
			st.LogMessages = st.LogMessages[:MaxLogEntries]
		}
	})
}

// Reset returns the state to idle, keeping the run log and counters of the
// last run for display, and records reason as the status message.
func (s *Store) Reset(reason string) error {
	s.Log(logging.LevelWarn, "Indexing status reset: %s", reason)
	return s.UpdateNow(func(st *State) {
		st.IsIndexing = false
		st.IsPaused = false
		st.PID = 0
		st.Phase = PhaseIdle
		st.CurrentFile = ""
		st.RetryCount = 0
		st.LastError = ""
		st.StatusMessage = reason
	})
}

// Flush writes the state now, cancelling any pending debounced save.
func (s *Store) Flush() error {
	// saveMu spans encode and write so files land in the order states were
	// taken.
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state.LastUpdated = s.now()
	s.lastSave = s.state.LastUpdated
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return s.write(data)
}

func (s *Store) write(data []byte) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock status file: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			logging.Warn("Failed to unlock status file: %v", err)
		}
	}()

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(s.path), err)
	}
	return nil
}

// StartHeartbeat saves the state periodically while a run is active, so
// LastUpdated shows the run is alive. Calling it again is a no-op until
// StopHeartbeat.
func (s *Store) StartHeartbeat() {
	s.heartbeatMu.Lock()
	defer s.heartbeatMu.Unlock()
	if s.heartbeatStop != nil {
		return
	}

	stop := make(chan struct{})
	s.heartbeatStop = stop

	go func() {
		ticker := time.NewTicker(s.opts.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.Get().IsIndexing {
					continue
				}
				if err := s.Flush(); err != nil {
					logging.Warn("Heartbeat save failed: %v", err)
				}
			case <-stop:
				return
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat started by StartHeartbeat.
func (s *Store) StopHeartbeat() {
	s.heartbeatMu.Lock()
	defer s.heartbeatMu.Unlock()
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
}

// RecoverStale resets a persisted run that cannot still be in progress:
// its PID is gone, its heartbeat is older than StaleAfter, or it carries
// this process's own PID and so was left over from before a restart. A run
// owned by another live process with a fresh heartbeat is left alone. It
// reports whether a reset happened.
func (s *Store) RecoverStale() (bool, error) {
	st := s.Get()
	if !st.IsIndexing {
		return false, nil
	}

	var reason string
	switch {
	case !ProcessAlive(st.PID):
		reason = fmt.Sprintf("previous indexing process %d is not running", st.PID)
	case s.heartbeatStale(st):
		reason = fmt.Sprintf("previous indexing process %d has not responded since %s", st.PID, st.LastUpdated.Format(time.RFC3339))
	case st.PID == os.Getpid():
		reason = fmt.Sprintf("run recorded by process %d was interrupted by a restart", st.PID)
	default:
		logging.Info("Indexing run owned by live process %d left in place", st.PID)
		return false, nil
	}

	return true, s.Reset(reason)
}

// LiveOwner rereads the status file and returns the PID of another process
// whose run is still in progress, judged by PID liveness and heartbeat age.
func (s *Store) LiveOwner() (int, bool) {
	st := s.load()
	if !st.IsIndexing || st.PID == os.Getpid() || !ProcessAlive(st.PID) || s.heartbeatStale(st) {
		return 0, false
	}
	return st.PID, true
}

func (s *Store) heartbeatStale(st State) bool {
	return !st.LastUpdated.IsZero() && s.now().Sub(st.LastUpdated) > StaleAfter
}

// ProcessAlive reports whether a process with pid exists. A process owned
// by another user counts as alive.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Close stops the heartbeat and writes any pending state.
func (s *Store) Close() error {
	s.StopHeartbeat()

	s.mu.RLock()
	pending := s.timer != nil
	s.mu.RUnlock()
	if pending {
		return s.Flush()
	}
	return nil
}
