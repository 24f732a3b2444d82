package storage

import (
	"context"
	"testing"

	"github.com/shorttrack/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDisabled(t *testing.T) {
	backend, err := Open(context.Background(), config.StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, backend)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)
}

func TestOpenMinioRequiresEndpoint(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Backend: "minio"})
	assert.Error(t, err)
}
