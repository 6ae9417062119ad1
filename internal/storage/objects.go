package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dharsanguruparan/SiteVault/internal/signing"
)

// ErrObjectNotFound is returned for paths that hold no object.
var ErrObjectNotFound = errors.New("object not found")

type object struct {
	data        []byte
	contentType string
}

// MemoryObjects is an in-memory object store. Signed URLs point at baseURL
// and carry an HMAC signature produced by signer.
type MemoryObjects struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
	signer  *signing.Signer
	now     func() time.Time

	failMove   error
	failRemove error
}

// NewMemoryObjects constructs a MemoryObjects.
func NewMemoryObjects(baseURL string, signer *signing.Signer) *MemoryObjects {
	return &MemoryObjects{
		objects: make(map[string]object),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		signer:  signer,
		now:     time.Now,
	}
}

// FailMoves makes every Move fail with err; nil clears it.
func (o *MemoryObjects) FailMoves(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failMove = err
}

// FailRemoves makes every Remove fail with err; nil clears it.
func (o *MemoryObjects) FailRemoves(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failRemove = err
}

// Upload stores the reader contents at path.
func (o *MemoryObjects) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[path] = object{data: data, contentType: contentType}
	return nil
}

// Download returns a copy of the object at path.
func (o *MemoryObjects) Download(ctx context.Context, path string) ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	obj, ok := o.objects[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrObjectNotFound)
	}
	return bytes.Clone(obj.data), nil
}

// Move renames oldPath to newPath.
func (o *MemoryObjects) Move(ctx context.Context, oldPath, newPath string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failMove != nil {
		return o.failMove
	}
	obj, ok := o.objects[oldPath]
	if !ok {
		return fmt.Errorf("%s: %w", oldPath, ErrObjectNotFound)
	}
	delete(o.objects, oldPath)
	o.objects[newPath] = obj
	return nil
}

// Remove deletes paths; missing paths are ignored.
func (o *MemoryObjects) Remove(ctx context.Context, paths []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failRemove != nil {
		return o.failRemove
	}
	for _, p := range paths {
		delete(o.objects, p)
	}
	return nil
}

// Exists reports whether path holds an object.
func (o *MemoryObjects) Exists(path string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.objects[path]
	return ok
}

// Paths lists every stored path in order.
func (o *MemoryObjects) Paths() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.objects))
	for p := range o.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// PublicURL returns the unsigned URL of path.
func (o *MemoryObjects) PublicURL(path string) string {
	return o.baseURL + "/" + path
}

// SignedURL returns a download URL valid for ttl.
func (o *MemoryObjects) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if !o.Exists(path) {
		return "", fmt.Errorf("%s: %w", path, ErrObjectNotFound)
	}
	expires := o.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("path", path)
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", o.signer.Sign(path, expires))
	return o.baseURL + "/download?" + q.Encode(), nil
}

// VerifySignedURL checks a signed URL's query parameters.
func (o *MemoryObjects) VerifySignedURL(q url.Values) bool {
	exp, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil || time.Unix(exp, 0).Before(o.now()) {
		return false
	}
	return o.signer.Validate(q.Get("path"), q.Get("expires"), q.Get("signature"))
}
