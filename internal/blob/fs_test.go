package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_RoundTrip(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("workbook bytes")
	require.NoError(t, s.Upload(ctx, "sources/job-1.xlsx", data))

	got, err := s.Download(ctx, "sources/job-1.xlsx")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFS_Overwrite(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "partials/x.xlsx", []byte("v1")))
	require.NoError(t, s.Upload(ctx, "partials/x.xlsx", []byte("v2")))

	got, err := s.Download(ctx, "partials/x.xlsx")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestFS_MissingRef(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)

	_, err = s.Download(context.Background(), "results/absent.xlsx")
	assert.Error(t, err)
}

func TestFS_RejectsPathEscape(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	err = s.Upload(ctx, "../outside.xlsx", []byte("x"))
	assert.Error(t, err)

	_, err = s.Download(ctx, "a/../../etc/passwd")
	assert.Error(t, err)
}
