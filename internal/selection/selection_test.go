package selection

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/scan-check/internal/cache"
)

type countingCache struct {
	*cache.Memory
	dels   map[string]int
	setErr error
}

func newCountingCache() *countingCache {
	return &countingCache{Memory: cache.NewMemory(), dels: make(map[string]int)}
}

func (c *countingCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	return c.Memory.Set(ctx, key, value, expiration)
}

func (c *countingCache) Del(ctx context.Context, key string) error {
	c.dels[key]++
	return c.Memory.Del(ctx, key)
}

func scan(name string) File {
	return File{Name: name, ContentType: "image/png", Data: []byte("png:" + name)}
}

func TestSelectReplacesAndReleasesPreviousPreview(t *testing.T) {
	ctx := context.Background()
	kv := newCountingCache()
	previews := NewPreviews(kv, time.Minute)
	store := NewStore(previews, zap.NewNop())

	if !store.Select(ctx, scan("a.png")) {
		t.Fatal("expected first selection to apply")
	}
	first, ok := store.CurrentPreview()
	if !ok {
		t.Fatal("expected a preview for the first selection")
	}

	store.Select(ctx, scan("b.png"))
	second, ok := store.CurrentPreview()
	if !ok || second.ID == first.ID {
		t.Fatalf("expected a fresh preview, got %+v", second)
	}

	if n := kv.dels[previewKey(first.ID)]; n != 1 {
		t.Fatalf("expected first preview released once, got %d", n)
	}
	if _, err := previews.Load(ctx, first.ID); !errors.Is(err, ErrPreviewNotFound) {
		t.Fatalf("expected released preview to be gone, got %v", err)
	}

	got, err := previews.Load(ctx, second.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Name != "b.png" || string(got.Data) != "png:b.png" || got.ContentType != "image/png" {
		t.Fatalf("unexpected preview contents: %+v", got)
	}

	sel, ok := store.Current()
	if !ok || sel.File.Name != "b.png" {
		t.Fatalf("expected b.png to be current, got %+v", sel)
	}
}

func TestSelectEmptyFileIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewPreviews(cache.NewMemory(), 0), zap.NewNop())

	if store.Select(ctx, File{}) {
		t.Fatal("expected empty selection to be ignored")
	}
	if _, ok := store.Current(); ok {
		t.Fatal("expected no selection")
	}

	store.Select(ctx, scan("a.png"))
	store.Select(ctx, File{})
	if sel, _ := store.Current(); sel.File.Name != "a.png" {
		t.Fatalf("expected a.png to survive an empty pick, got %+v", sel)
	}
}

func TestPreviewReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	kv := newCountingCache()
	store := NewStore(NewPreviews(kv, 0), zap.NewNop())

	store.Select(ctx, scan("a.png"))
	preview, _ := store.CurrentPreview()

	for i := 0; i < 3; i++ {
		if err := preview.Release(ctx); err != nil {
			t.Fatalf("release: %v", err)
		}
	}
	store.Close(ctx)

	if n := kv.dels[previewKey(preview.ID)]; n != 1 {
		t.Fatalf("expected exactly one delete, got %d", n)
	}
	if _, ok := store.Current(); ok {
		t.Fatal("expected Close to drop the selection")
	}
}

func TestSelectSurvivesPreviewFailure(t *testing.T) {
	ctx := context.Background()
	kv := newCountingCache()
	kv.setErr = errors.New("redis down")
	store := NewStore(NewPreviews(kv, 0), zap.NewNop())

	if !store.Select(ctx, scan("a.png")) {
		t.Fatal("expected selection to apply without a preview")
	}
	if _, ok := store.CurrentPreview(); ok {
		t.Fatal("expected no preview")
	}
	if sel, ok := store.Current(); !ok || sel.File.Name != "a.png" {
		t.Fatalf("unexpected selection: %+v", sel)
	}
}

func TestStoreWithoutPreviews(t *testing.T) {
	store := NewStore(nil, zap.NewNop())
	store.Select(context.Background(), scan("a.png"))
	if _, ok := store.CurrentPreview(); ok {
		t.Fatal("expected no preview when previews are disabled")
	}
	store.Close(context.Background())
}

func TestPreviewURL(t *testing.T) {
	p := &Preview{ID: "abc"}
	if p.URL() != "/preview/abc" {
		t.Fatalf("unexpected url %q", p.URL())
	}
}

func TestPrepareLeavesActiveSelectionUntilCommit(t *testing.T) {
	ctx := context.Background()
	kv := newCountingCache()
	store := NewStore(NewPreviews(kv, time.Minute), zap.NewNop())
	store.Select(ctx, scan("a.png"))

	next, ok := store.Prepare(ctx, scan("b.png"))
	if !ok || next.Preview == nil {
		t.Fatalf("expected prepared selection with preview, got %+v", next)
	}
	if cur, _ := store.Current(); cur.File.Name != "a.png" {
		t.Fatalf("prepare must not replace the active selection, got %q", cur.File.Name)
	}

	prev := store.Commit(next)
	if prev == nil || prev.File.Name != "a.png" {
		t.Fatalf("expected a.png to be replaced, got %+v", prev)
	}
	if cur, _ := store.Current(); cur.File.Name != "b.png" {
		t.Fatalf("expected b.png active, got %q", cur.File.Name)
	}
	if n := kv.dels[previewKey(prev.Preview.ID)]; n != 0 {
		t.Fatalf("commit must not release, got %d deletes", n)
	}

	store.Release(ctx, prev)
	store.Release(ctx, prev)
	if n := kv.dels[previewKey(prev.Preview.ID)]; n != 1 {
		t.Fatalf("expected one delete, got %d", n)
	}

	if _, ok := store.Prepare(ctx, File{}); ok {
		t.Fatal("expected empty file to be rejected")
	}
}
