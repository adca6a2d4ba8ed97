package attributes

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mrzor/cycletrace/internal/config"
	"github.com/mrzor/cycletrace/internal/cycle"
	"github.com/mrzor/cycletrace/internal/metricspec"
)

// CycleEnv is the expression environment for one cycle.
type CycleEnv struct {
	Source int `expr:"source"`
	// Marks maps marker name to timestamp (ns).
	Marks map[string]uint64 `expr:"marks"`
	// Latency maps metric name ("A -> B", "total") to nanoseconds.
	Latency map[string]uint64 `expr:"latency"`
	// Total is the first-to-last latency, zero when it was not recorded.
	Total uint64 `expr:"total"`
	// Pid and Comm identify the task that hit the first marker.
	Pid  int    `expr:"pid"`
	Comm string `expr:"comm"`
}

// NewCycleEnv builds the expression environment for c.
func NewCycleEnv(c cycle.Cycle) CycleEnv {
	env := CycleEnv{
		Source:  int(c.Source),
		Marks:   make(map[string]uint64, len(c.Marks)),
		Latency: make(map[string]uint64, len(c.Latencies)),
	}
	for _, m := range c.Marks {
		env.Marks[m.Name] = m.Timestamp
	}
	if len(c.Marks) > 0 {
		env.Pid = int(c.Marks[0].Pid)
		env.Comm = c.Marks[0].Comm
	}
	for _, l := range c.Latencies {
		env.Latency[l.Metric] = l.Value
		if l.Metric == metricspec.TotalMetric {
			env.Total = l.Value
		}
	}
	return env
}

// Evaluator handles compilation and evaluation of custom attribute expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
}

// NewEvaluator pre-compiles all custom attribute expressions.
func NewEvaluator(customAttrs []config.CustomAttribute) (*Evaluator, error) {
	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		if attr.Name == "" {
			return nil, fmt.Errorf("custom attribute %d has no name", i)
		}
		program, err := expr.Compile(attr.Expression, expr.Env(CycleEnv{}))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
	}, nil
}

// Len returns the number of configured attributes.
func (e *Evaluator) Len() int {
	if e == nil {
		return 0
	}
	return len(e.customAttrs)
}

// Evaluate runs every expression against c. Failing expressions are
// skipped and reported together in the returned error; the attributes of
// the others are still returned. Map results expand into one attribute per
// key ("name.key"). Nil results produce no attribute.
func (e *Evaluator) Evaluate(c cycle.Cycle) ([]attribute.KeyValue, error) {
	if e.Len() == 0 {
		return nil, nil
	}

	env := NewCycleEnv(c)
	var attrs []attribute.KeyValue
	var errs []error
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			errs = append(errs, fmt.Errorf("attribute %q: %w", customAttr.Name, err))
			continue
		}
		if output == nil {
			continue
		}

		outputValue := reflect.ValueOf(output)
		if outputValue.Kind() == reflect.Map {
			for _, key := range outputValue.MapKeys() {
				attrName := customAttr.Name + "." + sanitizeAttributeName(fmt.Sprint(key.Interface()))
				attrs = append(attrs, toAttribute(attrName, outputValue.MapIndex(key).Interface()))
			}
			continue
		}
		attrs = append(attrs, toAttribute(customAttr.Name, output))
	}

	return attrs, errors.Join(errs...)
}

// toAttribute keeps scalar types and formats everything else with %v.
func toAttribute(name string, v any) attribute.KeyValue {
	switch x := v.(type) {
	case bool:
		return attribute.Bool(name, x)
	case int:
		return attribute.Int(name, x)
	case int64:
		return attribute.Int64(name, x)
	case uint64:
		//nolint:gosec // cycle values fit in int64
		return attribute.Int64(name, int64(x))
	case float64:
		return attribute.Float64(name, x)
	case string:
		return attribute.String(name, x)
	default:
		return attribute.String(name, fmt.Sprintf("%v", v))
	}
}

// sanitizeAttributeName replaces non-alphanumeric characters with underscores.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
