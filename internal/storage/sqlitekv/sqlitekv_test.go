package sqlitekv_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/chatquiz/internal/storage"
	"github.com/victornm/chatquiz/internal/storage/sqlitekv"
	"github.com/victornm/chatquiz/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.KV {
		return open(t, filepath.Join(t.TempDir(), "quiz.db"))
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	path := filepath.Join(t.TempDir(), "quiz.db")

	s := open(t, path)
	_, err := s.Put(ctx, "1", []byte("committed"), 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = open(t, path)
	r, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, storage.Record{Value: []byte("committed"), Revision: 1}, r)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlitekv.Open(context.Background(), " ")
	require.Error(t, err)
}

func open(t *testing.T, path string) *sqlitekv.Store {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := sqlitekv.Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}
