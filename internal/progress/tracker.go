// Package progress tracks per-video pipeline state for status polling.
// The tracker is pure shared state: it performs no I/O and has no timers;
// the orchestrator drives every transition.
package progress

import (
	"fmt"
	"sync"
)

// Stage is the coarse pipeline phase of an in-flight job.
type Stage string

const (
	StageDownloading Stage = "downloading"
	StageExtracting  Stage = "extracting"
	StageAnalyzing   Stage = "analyzing"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// State is a consistent snapshot of one job's progress. Readers always
// observe a whole tuple, never a mix of old and new fields.
type State struct {
	VideoID      string `json:"video_id"`
	Stage        Stage  `json:"status"`
	Percent      int    `json:"progress"`
	Label        string `json:"stage"`
	CurrentFrame int    `json:"current_frame"`
	TotalFrames  int    `json:"total_frames"`
}

// Tracker holds the active-job map. Safe for concurrent use.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]State
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]State)}
}

// Start registers a new job in the downloading stage. It is the only way a
// job enters the map; every other transition updates an existing entry.
func (t *Tracker) Start(videoID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[videoID] = State{
		VideoID: videoID,
		Stage:   StageDownloading,
		Percent: 0,
		Label:   "Downloading video...",
	}
}

// Downloading updates byte-level download progress, mapped into the 0-15%
// band of the overall job.
func (t *Tracker) Downloading(videoID string, downloaded, total int64) {
	pct := 0
	if total > 0 {
		pct = int(float64(downloaded) / float64(total) * 15)
		if pct > 15 {
			pct = 15
		}
	}
	t.set(State{
		VideoID: videoID,
		Stage:   StageDownloading,
		Percent: pct,
		Label:   "Downloading video...",
	})
}

// Extracting marks the start of frame sampling.
func (t *Tracker) Extracting(videoID string) {
	t.set(State{
		VideoID: videoID,
		Stage:   StageExtracting,
		Percent: 15,
		Label:   "Extracting frames...",
	})
}

// Analyzing updates per-frame classification progress, interpolated linearly
// over the 20-95% band.
func (t *Tracker) Analyzing(videoID string, current, total int) {
	pct := 20
	if total > 0 {
		pct = 20 + int(float64(current)/float64(total)*75)
		if pct > 95 {
			pct = 95
		}
	}
	t.set(State{
		VideoID:      videoID,
		Stage:        StageAnalyzing,
		Percent:      pct,
		Label:        fmt.Sprintf("Analyzing frame %d/%d", current, total),
		CurrentFrame: current,
		TotalFrames:  total,
	})
}

// Complete marks the job finished at 100%. Completing an untracked job is a
// no-op, like every other non-Start transition.
func (t *Tracker) Complete(videoID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[videoID]
	if !ok {
		return
	}
	st.Stage = StageCompleted
	st.Percent = 100
	st.Label = "Completed"
	t.jobs[videoID] = st
}

// Fail removes the job from the active set. Callers then see "not found"
// unless a completed analysis exists in the cache.
func (t *Tracker) Fail(videoID string) {
	t.Remove(videoID)
}

// Remove drops the job's state. Removing an absent job is a no-op.
// Returns whether a job was present.
func (t *Tracker) Remove(videoID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.jobs[videoID]
	delete(t.jobs, videoID)
	return ok
}

// Get returns a snapshot of the job's state.
func (t *Tracker) Get(videoID string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.jobs[videoID]
	return st, ok
}

// Active reports whether a job is currently tracked.
func (t *Tracker) Active(videoID string) bool {
	_, ok := t.Get(videoID)
	return ok
}

// set applies a stage transition to an existing job. Updates for untracked
// ids are dropped so a job removed by Cancel cannot be resurrected by a late
// progress callback.
func (t *Tracker) set(st State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.jobs[st.VideoID]
	if !ok {
		return
	}
	// Preserve frame counters across stage-only updates.
	if st.TotalFrames == 0 {
		st.CurrentFrame = prev.CurrentFrame
		st.TotalFrames = prev.TotalFrames
	}
	t.jobs[st.VideoID] = st
}
