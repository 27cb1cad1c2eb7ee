package progress

import (
	"sync"
	"testing"
)

func TestLifecycle(t *testing.T) {
	tr := NewTracker()
	tr.Start("vid1")

	st, ok := tr.Get("vid1")
	if !ok || st.Stage != StageDownloading || st.Percent != 0 {
		t.Fatalf("after Start: %+v ok=%v", st, ok)
	}

	tr.Downloading("vid1", 50, 100)
	st, _ = tr.Get("vid1")
	if st.Percent != 7 {
		t.Errorf("halfway download percent = %d, want 7", st.Percent)
	}

	tr.Extracting("vid1")
	st, _ = tr.Get("vid1")
	if st.Stage != StageExtracting || st.Percent != 15 {
		t.Errorf("after Extracting: %+v", st)
	}

	tr.Analyzing("vid1", 10, 20)
	st, _ = tr.Get("vid1")
	if st.Stage != StageAnalyzing {
		t.Errorf("stage = %v", st.Stage)
	}
	if st.Percent != 57 {
		t.Errorf("mid-analysis percent = %d, want 57", st.Percent)
	}
	if st.CurrentFrame != 10 || st.TotalFrames != 20 {
		t.Errorf("frame counters = %d/%d", st.CurrentFrame, st.TotalFrames)
	}

	tr.Analyzing("vid1", 20, 20)
	st, _ = tr.Get("vid1")
	if st.Percent != 95 {
		t.Errorf("final-frame percent = %d, want 95", st.Percent)
	}

	tr.Complete("vid1")
	st, _ = tr.Get("vid1")
	if st.Stage != StageCompleted || st.Percent != 100 {
		t.Errorf("after Complete: %+v", st)
	}
}

func TestFailRemovesJob(t *testing.T) {
	tr := NewTracker()
	tr.Start("vid1")
	tr.Fail("vid1")
	if _, ok := tr.Get("vid1"); ok {
		t.Error("failed job should not be tracked")
	}
}

func TestRemoveIdempotent(t *testing.T) {
	tr := NewTracker()
	tr.Start("vid1")
	if !tr.Remove("vid1") {
		t.Error("first Remove should report presence")
	}
	if tr.Remove("vid1") {
		t.Error("second Remove should be a no-op")
	}
	if tr.Remove("never-existed") {
		t.Error("removing an unknown job should be a no-op")
	}
}

func TestUpdatesAfterRemoveAreDropped(t *testing.T) {
	// Only Start inserts. A stage update arriving after the job was removed
	// must not bring it back as a tracked job.
	tr := NewTracker()
	tr.Start("vid1")
	tr.Remove("vid1")

	tr.Downloading("vid1", 80, 100)
	tr.Extracting("vid1")
	tr.Analyzing("vid1", 3, 10)
	tr.Complete("vid1")

	if st, ok := tr.Get("vid1"); ok {
		t.Errorf("removed job resurrected: %+v", st)
	}
	if tr.Active("vid1") {
		t.Error("removed job reported active")
	}
}

func TestSnapshotConsistency(t *testing.T) {
	// Status reads interleaved with progress writes must never observe a
	// torn stage/percent pair like analyzing at 0%.
	tr := NewTracker()
	tr.Start("vid1")
	tr.Extracting("vid1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			tr.Analyzing("vid1", i, 500)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			st, ok := tr.Get("vid1")
			if !ok {
				t.Error("job disappeared mid-run")
				return
			}
			if st.Stage == StageAnalyzing && st.Percent < 20 {
				t.Errorf("torn snapshot: %+v", st)
				return
			}
		}
	}()
	wg.Wait()
}

func TestIndependentJobs(t *testing.T) {
	tr := NewTracker()
	tr.Start("a")
	tr.Start("b")
	tr.Analyzing("a", 5, 10)

	stB, _ := tr.Get("b")
	if stB.Stage != StageDownloading {
		t.Errorf("job b affected by job a: %+v", stB)
	}
}
