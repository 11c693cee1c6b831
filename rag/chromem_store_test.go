package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/tutorflow/llm/embedding"
)

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	db, err := OpenChromemDB("", false)
	require.NoError(t, err)

	store, err := NewChromemStore(db, "go_basics", embedding.NewHashProvider(64), zaptest.NewLogger(t))
	require.NoError(t, err)

	docs := []Document{
		{Content: "goroutines run concurrently", Metadata: map[string]any{MetaSource: "http://a", MetaChunkIndex: 0}},
		{Content: "maps store key value pairs", Metadata: map[string]any{MetaSource: "http://b", MetaChunkIndex: 0}},
	}
	require.NoError(t, store.AddDocuments(ctx, docs))
	// 重复写入同一内容不会增加文档
	require.NoError(t, store.AddDocuments(ctx, docs))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.SimilaritySearch(ctx, "goroutines run concurrently", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "http://a", got[0].Source())
	assert.Equal(t, "0", got[0].Metadata[MetaChunkIndex])
}

func TestChromemStore_EmptyCollection(t *testing.T) {
	db, err := OpenChromemDB("", false)
	require.NoError(t, err)
	store, err := NewChromemStore(db, "empty", embedding.NewHashProvider(16), nil)
	require.NoError(t, err)

	got, err := store.SimilaritySearch(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChromemStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := embedding.NewHashProvider(32)

	db, err := OpenChromemDB(dir, false)
	require.NoError(t, err)
	store, err := NewChromemStore(db, "persisted", emb, nil)
	require.NoError(t, err)
	require.NoError(t, store.AddDocuments(ctx, []Document{{Content: "interfaces", Metadata: map[string]any{MetaSource: "http://i"}}}))

	reopened, err := OpenChromemDB(dir, false)
	require.NoError(t, err)
	store2, err := NewChromemStore(reopened, "persisted", emb, nil)
	require.NoError(t, err)
	n, err := store2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewChromemStore_RequiresEmbedder(t *testing.T) {
	db, err := OpenChromemDB("", false)
	require.NoError(t, err)
	_, err = NewChromemStore(db, "c", nil, nil)
	assert.Error(t, err)
}

func TestMetadataStrings(t *testing.T) {
	m := metadataToStrings(map[string]any{"a": "x", "b": 2, "c": nil})
	assert.Equal(t, map[string]string{"a": "x", "b": "2"}, m)
	assert.Nil(t, metadataToStrings(nil))
	assert.Equal(t, map[string]any{"a": "x"}, metadataFromStrings(map[string]string{"a": "x"}))
}
