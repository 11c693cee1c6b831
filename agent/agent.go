package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/tutorflow/agent/prompt"
	"github.com/BaSui01/tutorflow/agent/structured"
	"github.com/BaSui01/tutorflow/internal/metrics"
	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/types"
)

// DefaultMaxRetries 是每个 Agent 的默认最大尝试次数
const DefaultMaxRetries = 3

const instrumentationName = "github.com/BaSui01/tutorflow/agent"

// Check validates one coerced output against the input that produced it.
type Check func(output any, input map[string]any) error

// ValueCheck adapts a structured.Validator that ignores the input.
func ValueCheck(v structured.Validator) Check {
	if v == nil {
		return nil
	}
	return func(output any, _ map[string]any) error {
		return v.Validate(output)
	}
}

// Config 描述一个 Agent
type Config struct {
	Name   string
	Prompt prompt.Spec
	Model  llm.ModelSource

	// TextOutput 为 true 时返回去除围栏的原始文本，不做 JSON 解析
	TextOutput bool

	// OutputTracks 为 true 时保留 {"tracks", "result"} 包装
	OutputTracks bool

	// NativeJSON 请求模型以 json_object 模式输出
	NativeJSON bool

	// IncludeHistory 在系统与任务消息之间插入 input["history"]
	IncludeHistory bool

	// MaxRetries 最大尝试次数，<= 0 时使用 DefaultMaxRetries
	MaxRetries int

	// Timeout 单次模型调用超时，0 表示由 Provider 决定
	Timeout time.Duration

	// Check 对每个输出做语义校验
	Check Check

	// InputCheck 绑定前校验每个输入
	InputCheck InputCheck
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics records invocations in collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(a *Agent) { a.metrics = collector }
}

// WithTracer overrides the otel tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Agent) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

// Request is one invocation. Batch requests use Inputs; others use Input.
type Request struct {
	Input  map[string]any
	Inputs []map[string]any
	Batch  bool

	// MaxRetries 和 Check 非零时覆盖 Agent 配置
	MaxRetries int
	Check      Check
}

// Result is a successful invocation.
type Result struct {
	// Value 单次调用为规整后的值，批量调用为 []any
	Value    any
	Attempts int
	Usage    types.TokenUsage
	// States 记录本次调用经历的状态
	States []State
}

// Agent binds a prompt to a model and runs the invocation loop: bind, call,
// coerce, validate, and retry recoverable failures up to MaxRetries attempts.
// An Agent is safe for concurrent use.
type Agent struct {
	name     string
	spec     prompt.Spec
	provider llm.Provider
	cfg      Config

	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// New resolves the model source once and returns the agent.
func New(cfg Config, opts ...Option) (*Agent, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, types.NewError(types.ErrInvalidConfig, "agent name is required")
	}
	if strings.TrimSpace(cfg.Prompt.TaskTemplate) == "" {
		return nil, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("agent %s: task template is required", cfg.Name))
	}
	provider, err := cfg.Model.Resolve()
	if err != nil {
		return nil, types.NewError(types.ErrProviderNotSet, fmt.Sprintf("agent %s: resolve model", cfg.Name)).
			WithAgent(cfg.Name).WithCause(err)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	a := &Agent{
		name:     cfg.Name,
		spec:     cfg.Prompt,
		provider: llm.WithTimeout(provider, cfg.Timeout),
		cfg:      cfg,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "agent"), zap.String("agent", a.name))
	return a, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// MaxRetries returns the configured attempt bound.
func (a *Agent) MaxRetries() int { return a.cfg.MaxRetries }

// Invoke runs a single input and returns the coerced value.
func (a *Agent) Invoke(ctx context.Context, input map[string]any) (any, error) {
	res, err := a.Do(ctx, Request{Input: input})
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// InvokeBatch runs inputs as one batch and returns one value per input, in
// input order. A failure of any entry retries the whole batch.
func (a *Agent) InvokeBatch(ctx context.Context, inputs []map[string]any) ([]any, error) {
	res, err := a.Do(ctx, Request{Inputs: inputs, Batch: true})
	if err != nil {
		return nil, err
	}
	return res.Value.([]any), nil
}

// Do runs the invocation loop.
func (a *Agent) Do(ctx context.Context, req Request) (*Result, error) {
	inputs := req.Inputs
	if !req.Batch {
		inputs = []map[string]any{req.Input}
	} else if len(inputs) == 0 {
		return &Result{Value: []any{}}, nil
	}
	maxRetries := a.cfg.MaxRetries
	if req.MaxRetries > 0 {
		maxRetries = req.MaxRetries
	}
	check := a.cfg.Check
	if req.Check != nil {
		check = req.Check
	}

	ctx, span := a.tracer.Start(ctx, "agent.invoke", trace.WithAttributes(
		attribute.String("agent.name", a.name),
		attribute.Bool("agent.batch", req.Batch),
		attribute.Int("agent.batch_size", len(inputs)),
	))
	defer span.End()

	inv := &invocation{agent: a, state: StateIdle, states: []State{StateIdle}}
	start := time.Now()
	res, err := a.loop(ctx, inv, inputs, maxRetries, check)

	status := "success"
	if err != nil {
		status = strings.ToLower(string(types.GetErrorCode(err)))
		if status == "" {
			status = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}
	span.SetAttributes(attribute.Int("agent.attempts", inv.attempts))
	a.metrics.RecordAgentInvocation(a.name, status, inv.attempts, time.Since(start))

	if err != nil {
		return nil, err
	}
	res.States = inv.states
	if !req.Batch {
		res.Value = res.Value.([]any)[0]
	}
	return res, nil
}

func (a *Agent) loop(ctx context.Context, inv *invocation, inputs []map[string]any, maxRetries int, check Check) (*Result, error) {
	reqs, err := a.bind(inputs)
	if err != nil {
		inv.to(StateFailed)
		return nil, withAgent(err, a.name)
	}

	var (
		last  error
		usage types.TokenUsage
	)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			inv.to(StateFailed)
			return nil, err
		}

		inv.attempts = attempt
		inv.to(StateInvoking)
		values, callUsage, err := a.attempt(ctx, inv, reqs, inputs, check)
		usage.Add(callUsage)
		if err == nil {
			inv.to(StateSucceeded)
			return &Result{Value: values, Attempts: attempt, Usage: usage}, nil
		}

		last = err
		if !types.IsRecoverable(err) {
			inv.to(StateFailed)
			a.logger.Error("invocation failed",
				zap.Int("attempt", attempt),
				zap.String("code", string(types.GetErrorCode(err))),
				zap.Error(err))
			return nil, withAgent(err, a.name)
		}

		a.logger.Warn("attempt failed to produce valid output",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
		if attempt < maxRetries {
			inv.to(StateRetrying)
		}
	}

	inv.to(StateFailed)
	return nil, types.RetriesExhausted(a.name, maxRetries, last)
}

// attempt 发起一次模型调用（批量时一次调用处理全部输入）并规整、校验输出
func (a *Agent) attempt(ctx context.Context, inv *invocation, reqs []*llm.ChatRequest, inputs []map[string]any, check Check) ([]any, types.TokenUsage, error) {
	var usage types.TokenUsage

	resps, err := a.call(ctx, reqs)
	if err != nil {
		return nil, usage, err
	}
	for _, r := range resps {
		if r != nil {
			usage.Add(r.Usage)
		}
	}
	if len(resps) != len(reqs) {
		return nil, usage, types.BackendTransport(a.provider.Name(),
			fmt.Errorf("batch returned %d responses for %d requests", len(resps), len(reqs)))
	}

	inv.to(StateValidating)
	opts := structured.CoerceOptions{JSONExpected: !a.cfg.TextOutput, OutputTracks: a.cfg.OutputTracks}
	values := make([]any, len(resps))
	for i, resp := range resps {
		v, err := structured.Coerce(resp.Text(), opts)
		if err != nil {
			return nil, usage, err
		}
		if check != nil && opts.JSONExpected {
			if err := check(v, inputs[i]); err != nil {
				return nil, usage, structured.Reject(err)
			}
		}
		values[i] = v
	}
	return values, usage, nil
}

func (a *Agent) call(ctx context.Context, reqs []*llm.ChatRequest) ([]*llm.ChatResponse, error) {
	if len(reqs) == 1 {
		resp, err := a.provider.Completion(ctx, reqs[0])
		if err != nil {
			return nil, err
		}
		return []*llm.ChatResponse{resp}, nil
	}
	return llm.CompleteBatch(ctx, a.provider, reqs)
}

func (a *Agent) bind(inputs []map[string]any) ([]*llm.ChatRequest, error) {
	var opts []prompt.BindOption
	if a.cfg.IncludeHistory {
		opts = append(opts, prompt.WithHistory())
	}
	reqs := make([]*llm.ChatRequest, len(inputs))
	for i, input := range inputs {
		if a.cfg.InputCheck != nil {
			if err := a.cfg.InputCheck(input); err != nil {
				return nil, err
			}
		}
		msgs, err := prompt.Bind(a.spec, input, opts...)
		if err != nil {
			return nil, err
		}
		req := &llm.ChatRequest{
			Messages: msgs,
			Metadata: map[string]string{"agent": a.name},
		}
		if a.cfg.NativeJSON && !a.cfg.TextOutput {
			req.ResponseFormat = llm.JSONObjectFormat
		}
		reqs[i] = req
	}
	return reqs, nil
}

func withAgent(err error, name string) error {
	if te, ok := err.(*types.Error); ok && te.Agent == "" {
		return te.WithAgent(name)
	}
	return err
}

// invocation 记录单次调用的状态机
type invocation struct {
	agent    *Agent
	state    State
	states   []State
	attempts int
}

func (inv *invocation) to(next State) {
	if !CanTransition(inv.state, next) {
		inv.agent.logger.DPanic("illegal state transition", zap.Error(ErrInvalidTransition{From: inv.state, To: next}))
		return
	}
	inv.agent.metrics.RecordAgentStateTransition(inv.agent.name, string(inv.state), string(next))
	inv.agent.logger.Debug("state transition",
		zap.String("from", string(inv.state)),
		zap.String("to", string(next)))
	inv.state = next
	inv.states = append(inv.states, next)
}
