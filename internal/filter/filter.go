// Package filter gates ingestion with user-supplied boolean expressions
// evaluated against each event.
//
// Expressions use the expr language and see these variables:
//
//	name  string  event name
//	cpu   int     source the event belongs to
//	pid   int     process id
//	comm  string  process command name
//	ts    int     timestamp in nanoseconds
//
// Example: comm == "nginx" && cpu in [0, 1]
package filter

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/mrzor/cycletrace/internal/event"
)

// Env is the evaluation environment exposed to expressions.
type Env struct {
	Name string `expr:"name"`
	CPU  int    `expr:"cpu"`
	Pid  int    `expr:"pid"`
	Comm string `expr:"comm"`
	TS   uint64 `expr:"ts"`
}

// Filter is a compiled event predicate. A nil *Filter accepts everything.
type Filter struct {
	source  string
	program *vm.Program
}

// Compile parses and type-checks a boolean expression. An empty expression
// yields a nil Filter.
func Compile(source string) (*Filter, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}

	program, err := expr.Compile(source, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", source, err)
	}
	return &Filter{source: source, program: program}, nil
}

// String returns the expression source.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.source
}

// Match reports whether ev passes the filter.
func (f *Filter) Match(ev event.Event) (bool, error) {
	if f == nil {
		return true, nil
	}

	out, err := expr.Run(f.program, Env{
		Name: ev.Name,
		CPU:  int(ev.Source),
		Pid:  int(ev.Pid),
		Comm: ev.Comm,
		TS:   ev.Timestamp,
	})
	if err != nil {
		return false, fmt.Errorf("evaluating filter %q: %w", f.source, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}
