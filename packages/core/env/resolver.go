// Package env resolves {{...}} placeholders in request files: user-defined
// variables, environment lookups and builtin dynamic values.
package env

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/restwire/restwire/packages/builtin"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// WarnFunc receives resolution warnings, such as unresolved names.
type WarnFunc func(format string, args ...any)

// Resolver substitutes placeholders. A $-prefixed expression is a builtin
// function call first and an OS environment variable second; a plain name
// looks up the variable table. Unresolved placeholders warn and stay
// literal. Safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]any
	funcs     *builtin.Registry
	warnFunc  WarnFunc
}

func NewResolver() *Resolver {
	return &Resolver{
		variables: make(map[string]any),
		funcs:     builtin.NewRegistry(),
	}
}

// SetWarnFunc routes resolution warnings. Nil silences them.
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnFunc = fn
}

func (r *Resolver) warn(format string, args ...any) {
	r.mu.RLock()
	fn := r.warnFunc
	r.mu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

// SetVariables merges vars into the variable table.
func (r *Resolver) SetVariables(vars map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range vars {
		r.variables[k] = v
	}
}

func (r *Resolver) SetVariable(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variables[name] = value
}

func (r *Resolver) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variables[name]
	return v, ok
}

// Resolve substitutes every placeholder in input.
func (r *Resolver) Resolve(input string) string {
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])

		if rest, dynamic := strings.CutPrefix(expr, "$"); dynamic {
			if result, ok := r.callBuiltin(rest); ok {
				return fmt.Sprintf("%v", result)
			}
			if val := os.Getenv(rest); val != "" {
				return val
			}
			r.warn("unresolved dynamic value: $%s", rest)
			return match
		}

		r.mu.RLock()
		val, ok := r.variables[expr]
		r.mu.RUnlock()
		if ok {
			return fmt.Sprintf("%v", val)
		}
		r.warn("unresolved variable: %s", expr)
		return match
	})
}

func (r *Resolver) callBuiltin(expr string) (any, bool) {
	r.mu.RLock()
	funcs := r.funcs
	r.mu.RUnlock()
	return funcs.Call(expr)
}

// ResolveAll resolves every value of a string map, leaving keys alone.
func (r *Resolver) ResolveAll(values map[string]string) map[string]string {
	result := make(map[string]string, len(values))
	for k, v := range values {
		result[k] = r.Resolve(v)
	}
	return result
}

// Unresolved returns the placeholder expressions in input that Resolve
// would leave literal, in order of appearance without duplicates.
func (r *Resolver) Unresolved(input string) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, match := range variablePattern.FindAllStringSubmatch(input, -1) {
		expr := strings.TrimSpace(match[1])
		if seen[expr] {
			continue
		}
		seen[expr] = true

		if rest, dynamic := strings.CutPrefix(expr, "$"); dynamic {
			if r.funcs.Has(rest) {
				continue
			}
			if os.Getenv(rest) != "" {
				continue
			}
			missing = append(missing, expr)
			continue
		}

		r.mu.RLock()
		_, ok := r.variables[expr]
		r.mu.RUnlock()
		if !ok {
			missing = append(missing, expr)
		}
	}
	return missing
}
