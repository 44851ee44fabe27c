package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recorder captures periodic JPEG frames into a directory. It is the
// harness's video capture: frames are assembled into a clip offline.
type Recorder struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	frames int
	errs   int
}

// StartRecording begins capturing one frame per interval into dir. Failed
// captures are counted and skipped; a demo recording should not abort a run.
func (s *Session) StartRecording(dir string, interval time.Duration) *Recorder {
	r := &Recorder{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				shot, err := s.Screenshot(context.Background())
				if err != nil {
					r.mu.Lock()
					r.errs++
					r.mu.Unlock()
					s.log.Debug("frame capture failed", zap.Error(err))
					continue
				}
				r.mu.Lock()
				n := r.frames
				r.frames++
				r.mu.Unlock()

				name := filepath.Join(dir, fmt.Sprintf("frame_%05d.jpg", n))
				if err := os.WriteFile(name, shot.Data, 0644); err != nil {
					s.log.Debug("frame write failed", zap.Error(err))
				}
			}
		}
	}()

	return r
}

// Stop ends the recording and returns how many frames were captured. Safe to
// call more than once; session teardown stops whatever a flow left running.
func (r *Recorder) Stop() int {
	r.stopOnce.Do(func() {
		close(r.stop)
		<-r.done
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}
