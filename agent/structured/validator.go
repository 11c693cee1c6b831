package structured

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"github.com/BaSui01/tutorflow/types"
)

// Validator inspects a coerced value. A non-nil error rejects the value and
// makes the invocation retry.
type Validator interface {
	Validate(value any) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(value any) error

// Validate implements Validator.
func (f ValidatorFunc) Validate(value any) error { return f(value) }

// Reject wraps err as VALIDATOR_REJECTED unless it already carries a code.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}
	return types.ValidatorRejected(err.Error()).WithCause(err)
}

// Predicate turns a boolean check into a Validator.
func Predicate(fn func(value any) bool, reason string) Validator {
	return ValidatorFunc(func(value any) error {
		if fn(value) {
			return nil
		}
		return types.ValidatorRejected(reason)
	})
}

// All runs validators in order and stops at the first rejection.
func All(validators ...Validator) Validator {
	return ValidatorFunc(func(value any) error {
		for _, v := range validators {
			if v == nil {
				continue
			}
			if err := v.Validate(value); err != nil {
				return Reject(err)
			}
		}
		return nil
	})
}

// KeySet accepts a mapping whose key set equals keys exactly.
func KeySet(keys ...string) Validator {
	want := append([]string(nil), keys...)
	sort.Strings(want)
	return ValidatorFunc(func(value any) error {
		m, ok := value.(map[string]any)
		if !ok {
			return types.ValidatorRejected(fmt.Sprintf("expected object, got %T", value))
		}
		got := make([]string, 0, len(m))
		for k := range m {
			got = append(got, k)
		}
		sort.Strings(got)
		if strings.Join(got, ",") != strings.Join(want, ",") {
			return types.ValidatorRejected(fmt.Sprintf("keys %v, want %v", got, want))
		}
		return nil
	})
}

// ListOf accepts a list with at least minItems elements, each accepted by item.
// A nil item validator only checks the length.
func ListOf(minItems int, item Validator) Validator {
	return ValidatorFunc(func(value any) error {
		list, ok := value.([]any)
		if !ok {
			return types.ValidatorRejected(fmt.Sprintf("expected list, got %T", value))
		}
		if len(list) < minItems {
			return types.ValidatorRejected(fmt.Sprintf("expected at least %d items, got %d", minItems, len(list)))
		}
		if item == nil {
			return nil
		}
		for i, el := range list {
			if err := item.Validate(el); err != nil {
				return types.ValidatorRejected(fmt.Sprintf("item %d: %v", i, err)).WithCause(err)
			}
		}
		return nil
	})
}

// SchemaValidator checks values against a compiled JSON Schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles a JSON Schema document.
func NewSchemaValidator(schemaJSON []byte) (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// MustSchema is NewSchemaValidator for package-level schemas.
func MustSchema(schemaJSON string) *SchemaValidator {
	v, err := NewSchemaValidator([]byte(schemaJSON))
	if err != nil {
		panic(err)
	}
	return v
}

// Validate implements Validator.
func (v *SchemaValidator) Validate(value any) error {
	result := v.schema.Validate(value)
	if !result.IsValid() {
		return types.ValidatorRejected(fmt.Sprintf("%s", result.Error()))
	}
	return nil
}
