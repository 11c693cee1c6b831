package agent

import "fmt"

// State 定义一次调用的生命周期状态
type State string

const (
	StateIdle       State = "idle"
	StateInvoking   State = "invoking"   // 等待模型返回
	StateValidating State = "validating" // 规整并校验输出
	StateSucceeded  State = "succeeded"
	StateRetrying   State = "retrying" // 可恢复错误，准备下一次尝试
	StateFailed     State = "failed"
)

// validTransitions 定义合法的状态转换
var validTransitions = map[State][]State{
	StateIdle:       {StateInvoking, StateFailed},
	StateInvoking:   {StateValidating, StateRetrying, StateFailed},
	StateValidating: {StateSucceeded, StateRetrying, StateFailed},
	StateRetrying:   {StateInvoking, StateFailed},
	StateSucceeded:  {},
	StateFailed:     {},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal 是否为终态
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}
