package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/types"
)

// HistoryKey is the input key holding prior-turn messages.
const HistoryKey = "history"

// Spec is the immutable prompt pair of an agent.
type Spec struct {
	SystemTemplate string `json:"system_template" yaml:"system_template"`
	TaskTemplate   string `json:"task_template" yaml:"task_template"`
}

type bindOptions struct {
	history bool
}

// BindOption configures Bind.
type BindOption func(*bindOptions)

// WithHistory inserts input["history"] between the system and task messages.
func WithHistory() BindOption {
	return func(o *bindOptions) { o.history = true }
}

// Bind substitutes input into the templates and returns the message list sent
// to the model. Every {name} placeholder must be present in input, otherwise
// a MISSING_VARIABLE error is returned. {{ and }} render as literal braces.
func Bind(spec Spec, input map[string]any, opts ...BindOption) ([]llm.Message, error) {
	var o bindOptions
	for _, opt := range opts {
		opt(&o)
	}

	var msgs []llm.Message
	if strings.TrimSpace(spec.SystemTemplate) != "" {
		system, err := Render(spec.SystemTemplate, input)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, types.NewSystemMessage(system))
	}

	if o.history {
		history, err := historyFrom(input)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, history...)
	}

	task, err := Render(spec.TaskTemplate, input)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, types.NewUserMessage(task))
	return msgs, nil
}

// Render substitutes {name} placeholders in tmpl.
func Render(tmpl string, input map[string]any) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := placeholderEnd(tmpl, i+1)
			if end < 0 {
				b.WriteByte(c)
				i++
				continue
			}
			name := tmpl[i+1 : end]
			v, ok := input[name]
			if !ok {
				return "", types.MissingVariable(name)
			}
			b.WriteString(formatValue(v))
			i = end + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// Variables lists placeholder names in tmpl in order of first appearance.
func Variables(tmpl string) []string {
	seen := make(map[string]bool)
	var names []string
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '{' {
			continue
		}
		if i+1 < len(tmpl) && tmpl[i+1] == '{' {
			i++
			continue
		}
		end := placeholderEnd(tmpl, i+1)
		if end < 0 {
			continue
		}
		name := tmpl[i+1 : end]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		i = end
	}
	return names
}

// placeholderEnd returns the index of the closing brace when tmpl[start:]
// begins with an identifier followed by '}', or -1.
func placeholderEnd(tmpl string, start int) int {
	j := start
	for j < len(tmpl) && isIdentByte(tmpl[j], j == start) {
		j++
	}
	if j == start || j >= len(tmpl) || tmpl[j] != '}' {
		return -1
	}
	return j
}

func isIdentByte(c byte, first bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	return !first && c >= '0' && c <= '9'
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64, json.Number:
		return fmt.Sprint(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

func historyFrom(input map[string]any) ([]llm.Message, error) {
	raw, ok := input[HistoryKey]
	if !ok {
		return nil, types.MissingVariable(HistoryKey)
	}
	switch h := raw.(type) {
	case nil:
		return nil, nil
	case []llm.Message:
		return h, nil
	case []map[string]any:
		out := make([]llm.Message, 0, len(h))
		for _, m := range h {
			out = append(out, messageFromMap(m))
		}
		return out, nil
	case []any:
		out := make([]llm.Message, 0, len(h))
		for i, item := range h {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("history[%d]: expected message object, got %T", i, item))
			}
			out = append(out, messageFromMap(m))
		}
		return out, nil
	default:
		return nil, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("history: unsupported type %T", raw))
	}
}

func messageFromMap(m map[string]any) llm.Message {
	role, _ := m["role"].(string)
	content, _ := m["content"].(string)
	if role == "" {
		role = string(types.RoleUser)
	}
	return llm.Message{Role: types.Role(role), Content: content}
}
