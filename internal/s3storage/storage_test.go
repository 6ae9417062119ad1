package s3storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SiteVault/internal/config"
)

func TestPublicURL(t *testing.T) {
	s, err := New(&config.Config{
		S3Endpoint:    "localhost:9000",
		S3AccessKey:   "key",
		S3SecretKey:   "secret",
		Bucket:        "sitevault",
		PublicBaseURL: "https://cdn.example.com/files/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/files/reports/r1/before/a.jpg", s.PublicURL("reports/r1/before/a.jpg"))
	assert.Equal(t, "https://cdn.example.com/files/a.jpg", s.PublicURL("/a.jpg"))
}
