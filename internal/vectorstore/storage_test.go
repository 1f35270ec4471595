package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
)

var (
	_ Storage = (*memory.Storage)(nil)
	_ Storage = (*qdrant.Storage)(nil)
)

func TestNewFactory(t *testing.T) {
	f, err := NewFactory(config.VectorStoreConfig{Type: "memory"})
	require.NoError(t, err)
	a, err := f("k1")
	require.NoError(t, err)
	b, err := f("k1")
	require.NoError(t, err)
	assert.NotSame(t, a, b, "every index gets its own storage")

	f, err = NewFactory(config.VectorStoreConfig{Type: "qdrant", Qdrant: &config.QdrantConfig{URL: "http://localhost:6333", CollectionPrefix: "ragchat_"}})
	require.NoError(t, err)
	s, err := f("abc")
	require.NoError(t, err)
	assert.Equal(t, "ragchat_abc", s.(*qdrant.Storage).Collection())

	_, err = NewFactory(config.VectorStoreConfig{Type: "qdrant"})
	assert.ErrorIs(t, err, domain.ErrConfig)
	_, err = NewFactory(config.VectorStoreConfig{Type: "faiss"})
	assert.ErrorIs(t, err, domain.ErrConfig)
}
