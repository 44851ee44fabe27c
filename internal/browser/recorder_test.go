package browser

import "testing"

func TestRecorderStopIdempotent(t *testing.T) {
	r := &Recorder{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		<-r.stop
		close(r.done)
	}()
	r.frames = 3

	if got := r.Stop(); got != 3 {
		t.Errorf("Stop() = %d, want 3", got)
	}
	// A second Stop must not panic and reports the same count.
	if got := r.Stop(); got != 3 {
		t.Errorf("second Stop() = %d, want 3", got)
	}
}
