package selection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/example/scan-check/internal/cache"
)

// DefaultPreviewTTL bounds how long an orphaned preview survives in the cache
// if its session dies without releasing it.
const DefaultPreviewTTL = time.Hour

// ErrPreviewNotFound is returned when a preview was released or never existed.
var ErrPreviewNotFound = errors.New("preview not found")

// Previews stores preview blobs in a cache under a random id, the server-side
// equivalent of a browser object URL.
type Previews struct {
	cache cache.Cache
	ttl   time.Duration
}

type previewBlob struct {
	Name        string `msgpack:"name"`
	ContentType string `msgpack:"content_type"`
	Data        []byte `msgpack:"data"`
}

// NewPreviews returns a preview registry on top of c. A non-positive ttl
// falls back to DefaultPreviewTTL.
func NewPreviews(c cache.Cache, ttl time.Duration) *Previews {
	if ttl <= 0 {
		ttl = DefaultPreviewTTL
	}
	return &Previews{cache: c, ttl: ttl}
}

// Acquire stores file and returns a handle that must be released once.
func (p *Previews) Acquire(ctx context.Context, file File) (*Preview, error) {
	encoded, err := msgpack.Marshal(previewBlob{Name: file.Name, ContentType: file.ContentType, Data: file.Data})
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := p.cache.Set(ctx, previewKey(id), encoded, p.ttl); err != nil {
		return nil, err
	}
	return &Preview{ID: id, owner: p}, nil
}

// Load returns the file behind a live preview id.
func (p *Previews) Load(ctx context.Context, id string) (File, error) {
	raw, err := p.cache.Get(ctx, previewKey(id))
	if errors.Is(err, cache.ErrMiss) {
		return File{}, ErrPreviewNotFound
	}
	if err != nil {
		return File{}, err
	}

	var blob previewBlob
	if err := msgpack.Unmarshal([]byte(raw), &blob); err != nil {
		return File{}, err
	}
	return File{Name: blob.Name, ContentType: blob.ContentType, Data: blob.Data}, nil
}

func previewKey(id string) string {
	return "preview:" + id
}

// Preview is a scoped handle on a stored preview blob.
type Preview struct {
	ID string

	owner *Previews
	once  sync.Once
	err   error
}

// URL is the path the web binding serves this preview under.
func (p *Preview) URL() string {
	return "/preview/" + p.ID
}

// Release frees the backing blob. Only the first call touches the cache;
// later calls return the first call's result.
func (p *Preview) Release(ctx context.Context) error {
	p.once.Do(func() {
		p.err = p.owner.cache.Del(ctx, previewKey(p.ID))
	})
	return p.err
}
