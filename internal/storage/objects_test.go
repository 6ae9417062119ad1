package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SiteVault/internal/signing"
)

func TestMemoryObjectsMoveAndSignedURL(t *testing.T) {
	ctx := context.Background()
	objs := NewMemoryObjects("http://files.local", signing.NewSigner([]byte("k")))
	require.NoError(t, objs.Upload(ctx, "a/before/x.jpg", strings.NewReader("img"), 3, "image/jpeg"))

	require.NoError(t, objs.Move(ctx, "a/before/x.jpg", "a/after/x.jpg"))
	assert.False(t, objs.Exists("a/before/x.jpg"))
	assert.True(t, objs.Exists("a/after/x.jpg"))

	raw, err := objs.SignedURL(ctx, "a/after/x.jpg", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, objs.VerifySignedURL(u.Query()))

	q := u.Query()
	q.Set("path", "a/before/x.jpg")
	assert.False(t, objs.VerifySignedURL(q))
}

func TestMemoryObjectsMoveMissing(t *testing.T) {
	objs := NewMemoryObjects("", signing.NewSigner([]byte("k")))
	err := objs.Move(context.Background(), "nope", "other")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
