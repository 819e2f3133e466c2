// Package selection holds the image the user has currently picked together
// with its disposable preview.
package selection

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// File is a user-picked image. No format or size validation happens here.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Empty reports whether f carries nothing, as when a picker is dismissed.
func (f File) Empty() bool {
	return f.Name == "" && len(f.Data) == 0
}

// Selection is the active file and, when one could be acquired, its preview.
type Selection struct {
	File    File
	Preview *Preview
}

// Store keeps at most one Selection. Replacing it releases the old preview.
type Store struct {
	mu       sync.Mutex
	previews *Previews
	logger   *zap.Logger
	current  *Selection
}

// NewStore builds a Store. previews may be nil, in which case selections
// carry no preview.
func NewStore(previews *Previews, logger *zap.Logger) *Store {
	return &Store{previews: previews, logger: logger.Named("selection")}
}

// Select replaces the active selection with file and reports whether it did.
// An empty file is ignored. Preview failures are logged and leave the new
// selection without a preview; selecting never fails.
func (s *Store) Select(ctx context.Context, file File) bool {
	next, ok := s.Prepare(ctx, file)
	if !ok {
		return false
	}
	s.Release(ctx, s.Commit(next))
	return true
}

// Prepare builds a selection for file and acquires its preview without
// touching the active selection. It reports false for an empty file.
func (s *Store) Prepare(ctx context.Context, file File) (*Selection, bool) {
	if file.Empty() {
		return nil, false
	}

	next := &Selection{File: file}
	if s.previews != nil {
		preview, err := s.previews.Acquire(ctx, file)
		if err != nil {
			s.logger.Warn("preview unavailable", zap.String("file", file.Name), zap.Error(err))
		} else {
			next.Preview = preview
		}
	}
	return next, true
}

// Commit makes next the active selection and returns the one it replaced.
// It does no I/O; the caller releases the returned selection.
func (s *Store) Commit(next *Selection) *Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current
	s.current = next
	return prev
}

// Current returns the active selection, if any.
func (s *Store) Current() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Selection{}, false
	}
	return *s.current, true
}

// CurrentPreview returns the active preview, if any.
func (s *Store) CurrentPreview() (*Preview, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.Preview == nil {
		return nil, false
	}
	return s.current.Preview, true
}

// Close drops the active selection and releases its preview.
func (s *Store) Close(ctx context.Context) {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	s.Release(ctx, prev)
}

// Release frees sel's preview. A nil selection is ignored.
func (s *Store) Release(ctx context.Context, sel *Selection) {
	if sel == nil || sel.Preview == nil {
		return
	}
	if err := sel.Preview.Release(ctx); err != nil {
		s.logger.Warn("failed to release preview", zap.String("preview_id", sel.Preview.ID), zap.Error(err))
	}
}
