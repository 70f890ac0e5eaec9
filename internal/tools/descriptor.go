package tools

import (
	"fmt"
	"math"

	"github.com/repochat/repochat/pkg/types"
)

// ParamType is the JSON type a tool parameter accepts.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
)

// Param describes one tool parameter.
type Param struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string
}

// Descriptor is the self-describing schema of a tool. Fixed at registration.
type Descriptor struct {
	Name        string
	Description string
	Params      []Param
}

// validate checks args against the descriptor. Handlers only run on args
// that pass.
func (d Descriptor) validate(args map[string]any) error {
	byName := make(map[string]Param, len(d.Params))
	for _, p := range d.Params {
		byName[p.Name] = p
		if _, ok := args[p.Name]; p.Required && !ok {
			return fmt.Errorf("%w: %s: missing required parameter %q", types.ErrToolArgument, d.Name, p.Name)
		}
	}
	for name, value := range args {
		p, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: %s: unknown parameter %q", types.ErrToolArgument, d.Name, name)
		}
		if !typeMatches(p.Type, value) {
			return fmt.Errorf("%w: %s: parameter %q must be %s", types.ErrToolArgument, d.Name, name, p.Type)
		}
	}
	return nil
}

// typeMatches checks a decoded JSON value against a parameter type. JSON
// numbers arrive as float64, so integers accept whole float64 values too.
func typeMatches(t ParamType, v any) bool {
	switch t {
	case ParamString:
		_, ok := v.(string)
		return ok
	case ParamBoolean:
		_, ok := v.(bool)
		return ok
	case ParamInteger:
		switch n := v.(type) {
		case int:
			return true
		case float64:
			return n == math.Trunc(n)
		default:
			return false
		}
	case ParamArray:
		_, ok := v.([]any)
		return ok
	default:
		return false
	}
}

// stringArg returns a string parameter or its default.
func stringArg(args map[string]any, name, def string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return def
}

// intArg returns an integer parameter or its default.
func intArg(args map[string]any, name string, def int) int {
	switch n := args[name].(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}

// stringSliceArg returns an array parameter coerced to strings.
func stringSliceArg(args map[string]any, name string) []string {
	raw, ok := args[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
