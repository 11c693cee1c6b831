package structured

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/tutorflow/types"
)

func TestCoerce_JSON(t *testing.T) {
	opts := CoerceOptions{JSONExpected: true}

	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"plain object", `{"a": 1}`, map[string]any{"a": int64(1)}},
		{"json fence", "```json\n{\"a\": 1}\n```", map[string]any{"a": int64(1)}},
		{"bare fence", "```\n[1, 2.5]\n```", []any{int64(1), 2.5}},
		{"surrounding whitespace", "  \n```json\n{\"a\": \"x\"}\n```  \n", map[string]any{"a": "x"}},
		{"fence without newline", "```json{\"a\": true}```", map[string]any{"a": true}},
		{"prose around fence", "Here you go:\n```json\n{\"a\": 2}\n```\nDone.", map[string]any{"a": int64(2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.raw, opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Errors(t *testing.T) {
	opts := CoerceOptions{JSONExpected: true}

	_, err := Coerce("   \n\t", opts)
	assert.True(t, types.IsErrorCode(err, types.ErrEmptyOutput))
	assert.True(t, types.IsRecoverable(err))

	_, err = Coerce("```json\n```", opts)
	assert.True(t, types.IsErrorCode(err, types.ErrEmptyOutput))

	_, err = Coerce("not json at all", opts)
	assert.True(t, types.IsErrorCode(err, types.ErrMalformedJSON))
	assert.True(t, types.IsRecoverable(err))

	_, err = Coerce(`{"a": 1} trailing`, opts)
	assert.True(t, types.IsErrorCode(err, types.ErrMalformedJSON))
}

func TestCoerce_Text(t *testing.T) {
	got, err := Coerce("```markdown\n# Title\nbody\n```", CoerceOptions{})
	require.NoError(t, err)
	assert.Equal(t, "# Title\nbody", got)

	got, err = Coerce("", CoerceOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestCoerce_Tracks(t *testing.T) {
	raw := `{"tracks": ["thought"], "result": {"title": "T"}}`

	got, err := Coerce(raw, CoerceOptions{JSONExpected: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "T"}, got)

	got, err = Coerce(raw, CoerceOptions{JSONExpected: true, OutputTracks: true})
	require.NoError(t, err)
	assert.Contains(t, got, "tracks")

	// 多出的键不触发剥离
	got, err = Coerce(`{"tracks": [], "result": 1, "extra": 2}`, CoerceOptions{JSONExpected: true})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCoerceValue(t *testing.T) {
	got, err := CoerceValue(map[string]any{"tracks": nil, "result": "x"}, CoerceOptions{JSONExpected: true})
	require.NoError(t, err)
	assert.Equal(t, "x", got)

	_, err = CoerceValue(nil, CoerceOptions{JSONExpected: true})
	assert.True(t, types.IsErrorCode(err, types.ErrEmptyOutput))
}

// 围栏包装前后的解析结果一致
func TestCoerce_FenceEquivalenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "key")
		val := rapid.StringMatching(`[A-Za-z0-9 ]{0,16}`).Draw(t, "val")
		lang := rapid.SampledFrom([]string{"", "json", "JSON"}).Draw(t, "lang")

		body := `{"` + key + `": "` + val + `"}`
		fenced := "```" + lang + "\n" + body + "\n```"

		plain, err := Coerce(body, CoerceOptions{JSONExpected: true})
		if err != nil {
			t.Fatalf("plain: %v", err)
		}
		wrapped, err := Coerce(fenced, CoerceOptions{JSONExpected: true})
		if err != nil {
			t.Fatalf("fenced: %v", err)
		}
		if !assert.ObjectsAreEqual(plain, wrapped) {
			t.Fatalf("plain %v != fenced %v", plain, wrapped)
		}
	})
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, "x", StripFence("```python\nx\n```"))
	assert.Equal(t, "no fence", StripFence("  no fence  "))
	assert.True(t, strings.HasPrefix(StripFence("```\n{}\n```"), "{"))
}
