package structured

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/tutorflow/types"
)

// CoerceOptions controls how raw model text becomes a structured value.
type CoerceOptions struct {
	// JSONExpected 为 false 时返回去除围栏后的原始文本
	JSONExpected bool

	// OutputTracks 为 true 时保留 {"tracks", "result"} 包装
	OutputTracks bool
}

var (
	// leadingFence 匹配开头的 ``` 及可选语言标记（如 json）
	leadingFence  = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*\r?\n?")
	trailingFence = regexp.MustCompile("\r?\n?```$")
	// embeddedFence 匹配正文中的第一个代码块
	embeddedFence = regexp.MustCompile("(?s)```(?:[A-Za-z0-9_+-]*)[ \t]*\r?\n(.*?)\r?\n?```")
)

// StripFence removes a Markdown code fence wrapping s. Text without a fence
// is returned trimmed but otherwise unchanged.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = leadingFence.ReplaceAllString(s, "")
		s = trailingFence.ReplaceAllString(s, "")
		return strings.TrimSpace(s)
	}
	return s
}

// Coerce normalizes raw model output. With JSONExpected it returns the parsed
// JSON value (map[string]any, []any, or a scalar), reporting EMPTY_OUTPUT for
// blank text and MALFORMED_JSON for unparsable text. A mapping holding exactly
// the keys "tracks" and "result" is replaced by its "result" unless
// OutputTracks is set.
func Coerce(raw string, opts CoerceOptions) (any, error) {
	if opts.JSONExpected && strings.TrimSpace(raw) == "" {
		return nil, types.EmptyOutput()
	}

	text := StripFence(raw)
	if !opts.JSONExpected {
		return text, nil
	}
	if text == "" {
		return nil, types.EmptyOutput()
	}

	value, err := decode(text)
	if err != nil {
		// 模型有时在代码块前后附带说明文字
		m := embeddedFence.FindStringSubmatch(raw)
		if len(m) < 2 {
			return nil, types.MalformedJSON(err)
		}
		value, err = decode(strings.TrimSpace(m[1]))
		if err != nil {
			return nil, types.MalformedJSON(err)
		}
	}

	if !opts.OutputTracks {
		value = StripTracks(value)
	}
	return value, nil
}

// CoerceValue applies track stripping to a value the backend already returned
// in structured form.
func CoerceValue(value any, opts CoerceOptions) (any, error) {
	if value == nil && opts.JSONExpected {
		return nil, types.EmptyOutput()
	}
	if !opts.OutputTracks {
		value = StripTracks(value)
	}
	return value, nil
}

// StripTracks unwraps {"tracks": ..., "result": X} to X. Any other value is
// returned unchanged.
func StripTracks(value any) any {
	m, ok := value.(map[string]any)
	if !ok || len(m) != 2 {
		return value
	}
	_, hasTracks := m["tracks"]
	result, hasResult := m["result"]
	if hasTracks && hasResult {
		return result
	}
	return value
}

func decode(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// 拒绝尾随内容，如 `{"a":1} trailing`
	if dec.More() {
		return nil, fmt.Errorf("unexpected content after JSON value at offset %d", dec.InputOffset())
	}
	return normalizeNumbers(v), nil
}

// normalizeNumbers converts json.Number into int64 when integral and float64
// otherwise, so values compare naturally in validators and tests.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	default:
		return v
	}
}
