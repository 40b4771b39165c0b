package s3

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depot/internal/backend"
)

func staticParams() map[string]string {
	return map[string]string{
		"endpoint":   "s3.example.com",
		"bucket":     "depot-files",
		"access_key": "AKIATEST",
		"secret_key": "secret",
	}
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	settings := backend.DefaultSettings()

	_, err := New("cloud", map[string]string{"bucket": "depot-files"}, settings)
	assert.Error(t, err)

	_, err = New("cloud", map[string]string{"endpoint": "s3.example.com"}, settings)
	assert.Error(t, err)

	_, err = New("cloud", nil, settings)
	assert.Error(t, err)
}

func TestNewWithStaticCredentials(t *testing.T) {
	b, err := New("cloud", staticParams(), backend.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, "cloud", b.tag)
	assert.Equal(t, "depot-files", b.bucket)
	assert.Equal(t, defaultURLExpiry, b.urlExpiry)
}

func TestNewURLExpiry(t *testing.T) {
	params := staticParams()
	params["url_expiry"] = "1h"
	b, err := New("cloud", params, backend.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, time.Hour, b.urlExpiry)

	params["url_expiry"] = "soon"
	_, err = New("cloud", params, backend.DefaultSettings())
	assert.Error(t, err)
}

func TestNewPathStyle(t *testing.T) {
	params := staticParams()
	params["path_style"] = "true"
	params["use_ssl"] = "false"
	_, err := New("cloud", params, backend.DefaultSettings())
	require.NoError(t, err)
}

func TestScopePrefix(t *testing.T) {
	assert.Equal(t, "", scopePrefix(""))
	assert.Equal(t, "tenant-1/", scopePrefix("tenant-1"))
	assert.Equal(t, "tenant-1/", scopePrefix("tenant-1/"))
	assert.Equal(t, "a/b/", scopePrefix("a/b"))
}
