package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/tutorflow/agent/prompt"
	"github.com/BaSui01/tutorflow/agent/structured"
	"github.com/BaSui01/tutorflow/internal/metrics"
	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/types"
)

// scriptedProvider 按顺序返回预设的输出
type scriptedProvider struct {
	mu      sync.Mutex
	outputs []any // string 或 error
	calls   int
	last    *llm.ChatRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = req
	i := p.calls
	p.calls++
	if i >= len(p.outputs) {
		i = len(p.outputs) - 1
	}
	switch out := p.outputs[i].(type) {
	case error:
		return nil, out
	case string:
		return &llm.ChatResponse{
			Choices: []llm.ChatChoice{{Message: types.NewAssistantMessage(out)}},
			Usage:   types.TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
		}, nil
	default:
		panic("unsupported scripted output")
	}
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestAgent(t *testing.T, p llm.Provider, mutate func(*Config)) *Agent {
	t.Helper()
	cfg := Config{
		Name:   "tester",
		Prompt: prompt.Spec{SystemTemplate: "You are a tutor.", TaskTemplate: "Explain {topic}."},
		Model:  llm.Direct(p),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return a
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Prompt: prompt.Spec{TaskTemplate: "x"}, Model: llm.Direct(&scriptedProvider{})})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))

	_, err = New(Config{Name: "a", Model: llm.Direct(&scriptedProvider{})})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))

	_, err = New(Config{Name: "a", Prompt: prompt.Spec{TaskTemplate: "x"}})
	assert.True(t, types.IsErrorCode(err, types.ErrProviderNotSet))

	a := newTestAgent(t, &scriptedProvider{outputs: []any{"{}"}}, nil)
	assert.Equal(t, DefaultMaxRetries, a.MaxRetries())
}

func TestInvoke_Success(t *testing.T) {
	p := &scriptedProvider{outputs: []any{"```json\n{\"title\": \"Limits\", \"content\": \"...\"}\n```"}}
	a := newTestAgent(t, p, func(c *Config) { c.NativeJSON = true })

	res, err := a.Do(context.Background(), Request{Input: map[string]any{"topic": "limits"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Limits", "content": "..."}, res.Value)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 2, res.Usage.TotalTokens)
	assert.Equal(t, []State{StateIdle, StateInvoking, StateValidating, StateSucceeded}, res.States)

	require.NotNil(t, p.last)
	require.Len(t, p.last.Messages, 2)
	assert.Equal(t, "Explain limits.", p.last.Messages[1].Content)
	assert.Equal(t, llm.JSONObjectFormat, p.last.ResponseFormat)
	assert.Equal(t, "tester", p.last.Metadata["agent"])
}

func TestInvoke_RetriesThenSucceeds(t *testing.T) {
	p := &scriptedProvider{outputs: []any{"not json", "", `{"ok": true}`}}
	a := newTestAgent(t, p, nil)

	res, err := a.Do(context.Background(), Request{Input: map[string]any{"topic": "x"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, p.Calls())
	assert.Contains(t, res.States, StateRetrying)
}

func TestInvoke_RetryBoundIsThree(t *testing.T) {
	p := &scriptedProvider{outputs: []any{"garbage"}}
	a := newTestAgent(t, p, nil)

	_, err := a.Invoke(context.Background(), map[string]any{"topic": "x"})
	require.Error(t, err)
	assert.Equal(t, 3, p.Calls())

	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.ErrRetriesExhausted, te.Code)
	assert.Equal(t, "tester", te.Agent)
	assert.Equal(t, 3, te.Attempts)

	// Cause 是最后一次失败
	assert.True(t, types.IsErrorCode(te.Cause, types.ErrMalformedJSON))
	assert.False(t, types.IsRecoverable(err))
}

func TestInvoke_RequestOverridesMaxRetries(t *testing.T) {
	p := &scriptedProvider{outputs: []any{"garbage"}}
	a := newTestAgent(t, p, func(c *Config) { c.MaxRetries = 5 })

	_, err := a.Do(context.Background(), Request{Input: map[string]any{"topic": "x"}, MaxRetries: 2})
	require.Error(t, err)
	assert.Equal(t, 2, p.Calls())
}

func TestInvoke_ValidatorRejection(t *testing.T) {
	p := &scriptedProvider{outputs: []any{`{"title": "t"}`, `{"title": "t", "content": "c"}`}}
	a := newTestAgent(t, p, func(c *Config) {
		c.Check = ValueCheck(structured.KeySet("title", "content"))
	})

	v, err := a.Invoke(context.Background(), map[string]any{"topic": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "t", "content": "c"}, v)
	assert.Equal(t, 2, p.Calls())
}

func TestInvoke_CheckSeesInput(t *testing.T) {
	p := &scriptedProvider{outputs: []any{`{"n": 2}`}}
	var seen map[string]any
	a := newTestAgent(t, p, func(c *Config) {
		c.Check = func(_ any, input map[string]any) error {
			seen = input
			return nil
		}
	})

	_, err := a.Invoke(context.Background(), map[string]any{"topic": "sets"})
	require.NoError(t, err)
	assert.Equal(t, "sets", seen["topic"])
}

func TestInvoke_MissingVariableShortCircuits(t *testing.T) {
	p := &scriptedProvider{outputs: []any{"{}"}}
	a := newTestAgent(t, p, nil)

	_, err := a.Invoke(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrMissingVariable))
	assert.Equal(t, 0, p.Calls())
}

func TestInvoke_TransportErrorIsUnrecoverable(t *testing.T) {
	p := &scriptedProvider{outputs: []any{types.BackendTransport("scripted", errors.New("401"))}}
	a := newTestAgent(t, p, nil)

	_, err := a.Invoke(context.Background(), map[string]any{"topic": "x"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrBackendTransport))
	assert.Equal(t, 1, p.Calls())
}

func TestInvoke_TimeoutIsRecoverable(t *testing.T) {
	p := &scriptedProvider{outputs: []any{types.Timeout("scripted", context.DeadlineExceeded), `{"ok": 1}`}}
	a := newTestAgent(t, p, nil)

	res, err := a.Do(context.Background(), Request{Input: map[string]any{"topic": "x"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

// slowProvider 阻塞直到 ctx 结束
type slowProvider struct{}

func (slowProvider) Name() string { return "slow" }

func (slowProvider) Completion(ctx context.Context, _ *llm.ChatRequest) (*llm.ChatResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestInvoke_PerCallTimeout(t *testing.T) {
	a := newTestAgent(t, slowProvider{}, func(c *Config) {
		c.Timeout = 10 * time.Millisecond
		c.MaxRetries = 2
	})

	_, err := a.Invoke(context.Background(), map[string]any{"topic": "x"})
	require.Error(t, err)

	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.ErrRetriesExhausted, te.Code)
	assert.True(t, types.IsErrorCode(te.Cause, types.ErrTimeout))
}

func TestInvoke_ContextCancelled(t *testing.T) {
	p := &scriptedProvider{outputs: []any{"{}"}}
	a := newTestAgent(t, p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Invoke(ctx, map[string]any{"topic": "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.Calls())
}

func TestInvoke_TextOutput(t *testing.T) {
	p := &scriptedProvider{outputs: []any{"```markdown\n# Notes\n```"}}
	a := newTestAgent(t, p, func(c *Config) {
		c.TextOutput = true
		c.Check = func(any, map[string]any) error { return errors.New("never called for text") }
	})

	v, err := a.Invoke(context.Background(), map[string]any{"topic": "x"})
	require.NoError(t, err)
	assert.Equal(t, "# Notes", v)
}

func TestInvoke_TrackStripping(t *testing.T) {
	raw := `{"tracks": ["step"], "result": {"name": "n"}}`

	v, err := newTestAgent(t, &scriptedProvider{outputs: []any{raw}}, nil).
		Invoke(context.Background(), map[string]any{"topic": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "n"}, v)

	v, err = newTestAgent(t, &scriptedProvider{outputs: []any{raw}}, func(c *Config) { c.OutputTracks = true }).
		Invoke(context.Background(), map[string]any{"topic": "x"})
	require.NoError(t, err)
	assert.Contains(t, v, "tracks")
}

// topicProvider 按用户消息中的主题取各自的输出队列，并发调用下结果仍确定
type topicProvider struct {
	mu      sync.Mutex
	outputs map[string][]string
	calls   int
}

func (p *topicProvider) Name() string { return "topics" }

func (p *topicProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	var topic string
	for _, m := range req.Messages {
		if m.Role == types.RoleUser {
			topic = strings.TrimSuffix(strings.TrimPrefix(m.Content, "Explain "), ".")
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	queue := p.outputs[topic]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no output scripted for topic %q", topic)
	}
	out := queue[0]
	if len(queue) > 1 {
		p.outputs[topic] = queue[1:]
	}
	return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: types.NewAssistantMessage(out)}}}, nil
}

func (p *topicProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// nativeBatchProvider 统计批量接口与单次接口各被调用几次
type nativeBatchProvider struct {
	topicProvider
	batchCalls  atomic.Int32
	singleCalls atomic.Int32
}

func (p *nativeBatchProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.singleCalls.Add(1)
	return p.topicProvider.Completion(ctx, req)
}

func (p *nativeBatchProvider) BatchCompletion(ctx context.Context, reqs []*llm.ChatRequest) ([]*llm.ChatResponse, error) {
	p.batchCalls.Add(1)
	out := make([]*llm.ChatResponse, len(reqs))
	for i, req := range reqs {
		resp, err := p.topicProvider.Completion(ctx, req)
		if err != nil {
			return nil, err
		}
		out[i] = resp
	}
	return out, nil
}

func TestInvokeBatch(t *testing.T) {
	p := &topicProvider{outputs: map[string][]string{
		"a": {`{"i": 0}`}, "b": {`{"i": 1}`}, "c": {`{"i": 2}`},
	}}
	a := newTestAgent(t, p, nil)

	out, err := a.InvokeBatch(context.Background(), []map[string]any{
		{"topic": "a"}, {"topic": "b"}, {"topic": "c"},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, v := range out {
		assert.Equal(t, map[string]any{"i": int64(i)}, v)
	}

	empty, err := a.InvokeBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInvokeBatch_OneBadEntryRetriesWholeBatch(t *testing.T) {
	// 第一轮 b 非法，第二轮全部合法
	p := &topicProvider{outputs: map[string][]string{
		"a": {`{"ok": 1}`},
		"b": {`oops`, `{"ok": 2}`},
	}}
	a := newTestAgent(t, p, nil)

	res, err := a.Do(context.Background(), Request{
		Batch:  true,
		Inputs: []map[string]any{{"topic": "a"}, {"topic": "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 4, p.Calls())
	require.IsType(t, []any{}, res.Value)
	assert.Equal(t, map[string]any{"ok": int64(2)}, res.Value.([]any)[1])
}

func TestInvokeBatch_TimeoutKeepsNativeBatch(t *testing.T) {
	p := &nativeBatchProvider{topicProvider: topicProvider{outputs: map[string][]string{
		"a": {`{"n": "a"}`}, "b": {`{"n": "b"}`}, "c": {`{"n": "c"}`},
	}}}
	a := newTestAgent(t, p, func(c *Config) { c.Timeout = time.Second })

	out, err := a.InvokeBatch(context.Background(), []map[string]any{
		{"topic": "a"}, {"topic": "b"}, {"topic": "c"},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, map[string]any{"n": "c"}, out[2])
	assert.Equal(t, int32(1), p.batchCalls.Load())
	assert.Equal(t, int32(0), p.singleCalls.Load())
}

func TestInvoke_RecordsMetrics(t *testing.T) {
	collector := metrics.NewCollector("agent_test", nil)
	p := &scriptedProvider{outputs: []any{`{"ok": true}`}}
	a, err := New(Config{
		Name:   "measured",
		Prompt: prompt.Spec{TaskTemplate: "go"},
		Model:  llm.Direct(p),
	}, WithMetrics(collector))
	require.NoError(t, err)

	_, err = a.Invoke(context.Background(), nil)
	require.NoError(t, err)

	families, err := collector.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "agent_test_agent_invocations_total" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, StateInvoking))
	assert.True(t, CanTransition(StateValidating, StateRetrying))
	assert.True(t, CanTransition(StateRetrying, StateInvoking))
	assert.False(t, CanTransition(StateSucceeded, StateInvoking))
	assert.False(t, CanTransition(StateIdle, StateSucceeded))
	assert.True(t, StateFailed.IsTerminal())
	assert.EqualError(t, ErrInvalidTransition{From: StateIdle, To: StateSucceeded}, "invalid state transition: idle -> succeeded")
}
