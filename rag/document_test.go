package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDocs(t *testing.T) {
	docs := []Document{
		{Content: "first", Metadata: map[string]any{MetaSource: "http://a", MetaTitle: "A"}},
		{Content: "   "},
		{Content: "second"},
	}
	got := FormatDocs(docs)
	want := "Source: {\"source\":\"http://a\",\"title\":\"A\"}\nContent: first\n\n" +
		"Source: {}\nContent: second"
	assert.Equal(t, want, got)

	assert.Empty(t, FormatDocs(nil))
}

func TestChunkID_Stable(t *testing.T) {
	a := ChunkID("http://a", "content")
	assert.Equal(t, a, ChunkID("http://a", "content"))
	assert.NotEqual(t, a, ChunkID("http://b", "content"))
	assert.NotEqual(t, a, ChunkID("http://a", "other"))
	// 分隔符防止拼接碰撞
	assert.NotEqual(t, ChunkID("ab", "c"), ChunkID("a", "bc"))
}

func TestDocumentAccessors(t *testing.T) {
	d := Document{Metadata: map[string]any{MetaSource: "http://a", MetaTitle: 3}}
	assert.Equal(t, "http://a", d.Source())
	assert.Equal(t, "3", d.Title())
	assert.Empty(t, Document{}.Source())
}
