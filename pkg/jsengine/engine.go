// Package jsengine evaluates JavaScript expressions embedded in scenario files.
package jsengine

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/devicelab-dev/steadyhand/pkg/logger"
)

// Engine wraps a goja runtime holding scenario variables.
type Engine struct {
	runtime   *goja.Runtime
	variables map[string]interface{}
	output    map[string]interface{}
	url       string
	platform  string
	log       *zap.Logger
	mu        sync.Mutex
}

// New creates a new JS engine instance
func New() *Engine {
	e := &Engine{
		runtime:   goja.New(),
		variables: make(map[string]interface{}),
		output:    make(map[string]interface{}),
		log:       logger.L().Named("js"),
	}

	e.setupBuiltins()
	return e
}

// WithLogger routes console output to l.
func (e *Engine) WithLogger(l *zap.Logger) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = logger.Or(l).Named("js")
	return e
}

func (e *Engine) setupBuiltins() {
	e.setupConsole()
	e.runtime.Set("json", e.jsonFunc())
	// Values stored here are visible to later steps as variables.
	e.runtime.Set("output", e.output)
	e.runtime.Set("browser", e.browserObject())
}

// setupConsole adds console.log, console.error and console.warn.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprint(arg.Export())
			}
			msg := strings.Join(parts, " ")
			switch level {
			case "error":
				e.log.Error(msg)
			case "warn":
				e.log.Warn(msg)
			default:
				e.log.Info(msg)
			}
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc("info"))
	console.Set("error", makeConsoleFunc("error"))
	console.Set("warn", makeConsoleFunc("warn"))
	e.runtime.Set("console", console)
}

// jsonFunc returns the json() helper function
func (e *Engine) jsonFunc() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}

		str := call.Arguments[0].String()

		result, err := e.runtime.RunString(fmt.Sprintf("JSON.parse(%q)", str))
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}

		return result
	}
}

// browserObject returns the read-only browser global.
func (e *Engine) browserObject() *goja.Object {
	obj := e.runtime.NewObject()

	// browser.url - location of the focused window after the last step
	obj.DefineAccessorProperty("url", e.runtime.ToValue(func() string {
		return e.url
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	// browser.name - chrome, firefox, chromium
	obj.DefineAccessorProperty("name", e.runtime.ToValue(func() string {
		return e.platform
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	return obj
}

// SetVariable sets a variable accessible in JS as a global
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[name] = value
	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables
func (e *Engine) SetVariables(vars map[string]string) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// Variable returns a previously set variable.
func (e *Engine) Variable(name string) (interface{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.variables[name]
	return v, ok
}

// SetURL records the focused window's location.
func (e *Engine) SetURL(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.url = url
}

// SetPlatform sets the browser name exposed as browser.name.
func (e *Engine) SetPlatform(platform string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.platform = platform
}

// GetOutput returns a copy of the output object (values set by scripts)
func (e *Engine) GetOutput() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	outputVal := e.runtime.Get("output")
	var source map[string]interface{}

	if outputVal != nil && !goja.IsUndefined(outputVal) {
		if m, ok := outputVal.Export().(map[string]interface{}); ok {
			source = m
		}
	}

	if source == nil {
		source = e.output
	}

	result := make(map[string]interface{}, len(source))
	for k, v := range source {
		result[k] = v
	}
	return result
}

// Eval evaluates a JavaScript expression and returns the result
func (e *Engine) Eval(script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}

	return result.Export(), nil
}

// EvalString evaluates a JavaScript expression and returns string result
func (e *Engine) EvalString(script string) (string, error) {
	result, err := e.Eval(script)
	if err != nil {
		return "", err
	}

	if result == nil {
		return "", nil
	}

	return fmt.Sprintf("%v", result), nil
}

// RunScript runs a JavaScript file/script
func (e *Engine) RunScript(script string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.runtime.RunString(script)
	if err != nil {
		return fmt.Errorf("JS runtime error: %w", err)
	}

	return nil
}

var bareVar = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// Expand resolves ${expr} through the runtime, then $NAME from scenario
// variables and the process environment. Unknown $NAME references are kept.
func (e *Engine) Expand(text string) (string, error) {
	out, err := e.ExpandVariables(text)
	if err != nil {
		return "", err
	}
	if !strings.Contains(out, "$") {
		return out, nil
	}
	return bareVar.ReplaceAllStringFunc(out, func(m string) string {
		name := m[1:]
		if v, ok := e.Variable(name); ok {
			return fmt.Sprint(v)
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return m
	}), nil
}

// ExpandVariables expands ${...} expressions in a string using JS evaluation.
// An expression that fails to evaluate is an error.
func (e *Engine) ExpandVariables(text string) (string, error) {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		// Find matching }
		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			if result[end] == '{' {
				depth++
			} else if result[end] == '}' {
				depth--
			}
			end++
		}

		if depth != 0 {
			// Unmatched brace, skip
			start = idx + 2
			continue
		}

		expr := result[idx+2 : end-1]
		value, err := e.EvalString(expr)
		if err != nil {
			return "", fmt.Errorf("expand %q: %w", "${"+expr+"}", err)
		}

		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}

	return result, nil
}

// Close releases the runtime. Safe to call multiple times.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runtime.Interrupt("engine closed")
}
