package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codebench/codebench"
)

// BlobSink is where a buffer-backed store persists its snapshots.
type BlobSink interface {
	// Load returns the last saved snapshot, or (nil, nil) when none exists.
	Load(ctx context.Context) ([]byte, error)
	// Save durably replaces the snapshot.
	Save(ctx context.Context, data []byte) error
}

// FileSink persists snapshots to a single file, written atomically via a
// temp file and rename.
type FileSink struct {
	Path string
}

var _ BlobSink = (*FileSink)(nil)

// Load reads the snapshot file. A missing file is (nil, nil).
func (f *FileSink) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", f.Path, err)
	}
	return data, nil
}

// Save writes the snapshot file.
func (f *FileSink) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot %s: %w", f.Path, err)
	}
	return nil
}

// NewBuffered creates an in-memory Store restored from sink's last snapshot
// and starts a background flusher that exports back to sink every interval.
// Call FlushAndClose on teardown to persist the final state.
func NewBuffered(ctx context.Context, sink BlobSink, interval time.Duration, opts ...Option) (*Store, error) {
	snapshot, err := sink.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load snapshot: %w", err)
	}
	s, err := NewInMemory(snapshot, opts...)
	if err != nil {
		return nil, err
	}
	s.sink = sink
	if interval > 0 {
		s.stopCh = make(chan struct{})
		s.doneCh = make(chan struct{})
		go s.flushLoop(interval)
	}
	return s, nil
}

var _ codebench.FlushCloser = (*Store)(nil)

func (s *Store) flushLoop(interval time.Duration) {
	defer close(s.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Error("sqlite: periodic flush failed", "error", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// Flush exports the current contents and saves them to the sink.
func (s *Store) Flush(ctx context.Context) error {
	if s.sink == nil {
		return fmt.Errorf("sqlite: flush requires a buffer-backed store")
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	start := time.Now()
	data, err := s.Export(ctx)
	if err != nil {
		return err
	}
	if err := s.sink.Save(ctx, data); err != nil {
		return fmt.Errorf("sqlite: save snapshot: %w", err)
	}
	s.logger.Debug("sqlite: flushed snapshot", "bytes", len(data), "duration", time.Since(start))
	return nil
}

// FlushAndClose stops the background flusher, performs a final flush, and
// closes the database. The final flush runs even when the loop is stopped.
func (s *Store) FlushAndClose(ctx context.Context) error {
	s.stopFlusher()
	var flushErr error
	if s.sink != nil {
		flushErr = s.Flush(ctx)
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	return flushErr
}

func (s *Store) stopFlusher() {
	if s.stopCh == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}
