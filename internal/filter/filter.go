// Package filter evaluates CEL expressions against decoded build events.
//
// Expressions see these variables:
//
//	kind, importance, message, template, sender, help_keyword,
//	subcategory, code, file, extended_type, data   string
//	tag, level, line, column, seq, ts_ms, now_ms    int
//	extended, has_data                              bool
//	metadata                                        map(string, string)
//
// For example: `level >= 2 && file.endsWith(".csproj")` or
// `extended_type == "TaskParameter" && metadata["name"] == "Sources"`.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/buildlog/internal/event"
)

// ErrInvalidExpression wraps every compile failure.
var ErrInvalidExpression = errors.New("filter: invalid expression")

// Filter is a compiled expression. The zero value matches everything.
type Filter struct {
	prog cel.Program
	expr string
}

var env = mustEnv()

func mustEnv() *cel.Env {
	e, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("tag", cel.IntType),
		cel.Variable("importance", cel.StringType),
		cel.Variable("level", cel.IntType),
		cel.Variable("message", cel.StringType),
		cel.Variable("template", cel.StringType),
		cel.Variable("sender", cel.StringType),
		cel.Variable("help_keyword", cel.StringType),
		cel.Variable("subcategory", cel.StringType),
		cel.Variable("code", cel.StringType),
		cel.Variable("file", cel.StringType),
		cel.Variable("line", cel.IntType),
		cel.Variable("column", cel.IntType),
		cel.Variable("extended", cel.BoolType),
		cel.Variable("extended_type", cel.StringType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("data", cel.StringType),
		cel.Variable("has_data", cel.BoolType),
		cel.Variable("seq", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		panic(err)
	}
	return e
}

// Compile parses and type-checks expr. A blank expression yields a Filter
// that matches everything. The expression must evaluate to a bool.
func Compile(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("%w: %v", ErrInvalidExpression, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return Filter{}, fmt.Errorf("%w: result must be bool, got %s", ErrInvalidExpression, ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return Filter{prog: prog, expr: expr}, nil
}

// Enabled reports whether the filter has an expression.
func (f Filter) Enabled() bool { return f.prog != nil }

// String returns the source expression.
func (f Filter) String() string { return f.expr }

// Match evaluates the filter against ev at position seq. Evaluation errors
// count as no match.
func (f Filter) Match(ev event.Event, seq uint64) bool {
	if f.prog == nil {
		return true
	}
	return f.MatchView(event.Describe(ev), seq)
}

// MatchView is Match for an already projected event.
func (f Filter) MatchView(v event.View, seq uint64) bool {
	if f.prog == nil {
		return true
	}
	md := v.Metadata
	if md == nil {
		md = map[string]string{}
	}
	var ts int64
	if !v.Timestamp.IsZero() {
		ts = v.Timestamp.UnixMilli()
	}
	out, _, err := f.prog.Eval(map[string]any{
		"kind":          v.Kind,
		"tag":           int64(v.Tag),
		"importance":    v.Importance,
		"level":         int64(v.Level),
		"message":       v.Message,
		"template":      v.Template,
		"sender":        v.SenderName,
		"help_keyword":  v.HelpKeyword,
		"subcategory":   v.Subcategory,
		"code":          v.Code,
		"file":          v.File,
		"line":          int64(v.Line),
		"column":        int64(v.Column),
		"extended":      v.Extended,
		"extended_type": v.Type,
		"metadata":      md,
		"data":          v.Data,
		"has_data":      v.HasData,
		"seq":           int64(seq),
		"ts_ms":         ts,
		"now_ms":        time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
