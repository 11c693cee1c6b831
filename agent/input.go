package agent

import (
	"fmt"
	"strings"

	"github.com/BaSui01/tutorflow/types"
)

// InputCheck validates one input before it is bound into a prompt. A
// rejected input fails the invocation with MISSING_VARIABLE and no model
// call is made.
type InputCheck func(input map[string]any) error

// RequireText accepts inputs where every key holds a non-blank string.
func RequireText(keys ...string) InputCheck {
	return func(input map[string]any) error {
		for _, k := range keys {
			s, ok := input[k].(string)
			if !ok || strings.TrimSpace(s) == "" {
				return types.NewError(types.ErrMissingVariable, fmt.Sprintf("%q must be a non-empty string", k))
			}
		}
		return nil
	}
}

// RequireObject accepts inputs where every key holds a JSON object.
func RequireObject(keys ...string) InputCheck {
	return func(input map[string]any) error {
		for _, k := range keys {
			if _, ok := input[k].(map[string]any); !ok {
				return types.NewError(types.ErrMissingVariable, fmt.Sprintf("%q must be an object, got %T", k, input[k]))
			}
		}
		return nil
	}
}

// RequirePresent accepts inputs where every key is set to a non-nil value.
func RequirePresent(keys ...string) InputCheck {
	return func(input map[string]any) error {
		for _, k := range keys {
			if v, ok := input[k]; !ok || v == nil {
				return types.MissingVariable(k)
			}
		}
		return nil
	}
}

// Inputs runs checks in order and stops at the first rejection.
func Inputs(checks ...InputCheck) InputCheck {
	return func(input map[string]any) error {
		for _, c := range checks {
			if c == nil {
				continue
			}
			if err := c(input); err != nil {
				return err
			}
		}
		return nil
	}
}
