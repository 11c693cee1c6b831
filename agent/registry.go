package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/tutorflow/types"
)

// Registry manages named agents and dispatches invocations to them.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents: make(map[string]*Agent),
		logger: logger.With(zap.String("component", "agent_registry")),
	}
}

// Register adds agents. Registering a name twice is an error.
func (r *Registry) Register(agents ...*Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range agents {
		if _, exists := r.agents[a.Name()]; exists {
			return types.NewError(types.ErrInvalidConfig, fmt.Sprintf("agent %q already registered", a.Name()))
		}
		r.agents[a.Name()] = a
		r.logger.Info("agent registered",
			zap.String("agent", a.Name()),
			zap.Int("max_retries", a.MaxRetries()),
		)
	}
	return nil
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	return a, ok
}

// Names returns the registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InvokeAgent runs the named agent. With batch, input must be a list of
// mappings and the result is a list in the same order; otherwise input is a
// single mapping. Exhausted retries surface as RETRIES_EXHAUSTED.
func (r *Registry) InvokeAgent(ctx context.Context, name string, input any, batch bool) (any, error) {
	a, ok := r.Get(name)
	if !ok {
		return nil, types.NewError(types.ErrAgentNotFound, fmt.Sprintf("agent %q not registered", name))
	}

	if batch {
		inputs, err := toInputList(input)
		if err != nil {
			return nil, err
		}
		return a.InvokeBatch(ctx, inputs)
	}

	m, err := toInput(input)
	if err != nil {
		return nil, err
	}
	return a.Invoke(ctx, m)
}

func toInput(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return m, nil
	default:
		return nil, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("agent input must be a mapping, got %T", v))
	}
}

func toInputList(v any) ([]map[string]any, error) {
	switch t := v.(type) {
	case []map[string]any:
		return t, nil
	case []any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			m, err := toInput(item)
			if err != nil {
				return nil, fmt.Errorf("batch input %d: %w", i, err)
			}
			out[i] = m
		}
		return out, nil
	case map[string]any:
		// 单个映射视为只有一项的批量
		return []map[string]any{t}, nil
	default:
		return nil, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("batch input must be a list of mappings, got %T", v))
	}
}
