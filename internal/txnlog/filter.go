package txnlog

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
)

// Filter is a compiled CEL predicate over records, used by replication
// consumers and the dump tooling. The zero Filter matches everything.
//
// Variables: kind (string), object_id, element_id, sequence, ts_ms,
// actual_ms, attributes, keys, metadata, now_ms.
type Filter struct {
	prog    cel.Program
	expr    string
	enabled bool
}

// CompileFilter compiles expr. An empty expression yields a filter that
// matches every record.
func CompileFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("object_id", cel.StringType),
		cel.Variable("element_id", cel.StringType),
		cel.Variable("sequence", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("actual_ms", cel.IntType),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("keys", cel.ListType(cel.StringType)),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.StringType)),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, doerrors.Internal("build filter environment", err)
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, doerrors.InvalidArgument("filter: " + iss.Err().Error())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, doerrors.InvalidArgument("filter: " + iss2.Err().Error())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return Filter{}, doerrors.InvalidArgument("filter must evaluate to bool, got " + checked.OutputType().String())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, doerrors.InvalidArgument("filter: " + err.Error())
	}
	return Filter{prog: prog, expr: expr, enabled: true}, nil
}

// Enabled reports whether the filter has an expression.
func (f Filter) Enabled() bool { return f.enabled }

func (f Filter) String() string { return f.expr }

// Match evaluates the filter against r. Evaluation errors count as no match.
func (f Filter) Match(r Record) bool {
	if !f.enabled {
		return true
	}
	attrs := r.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	md := r.Metadata
	if md == nil {
		md = map[string]string{}
	}
	keys := r.Keys
	if keys == nil {
		keys = []string{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"kind":       r.Kind.String(),
		"object_id":  r.ObjectID,
		"element_id": r.ElementID,
		"sequence":   int64(r.Seq),
		"ts_ms":      r.Timestamp,
		"actual_ms":  r.ActualTime,
		"attributes": attrs,
		"keys":       keys,
		"metadata":   md,
		"now_ms":     time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
