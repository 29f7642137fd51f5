package assertion

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ahrav/go-qualitygate/internal/domain"
)

// conditionEnv is the variable set visible to Rule.Condition.
type conditionEnv struct {
	Value       float64 `expr:"value"`
	HasValue    bool    `expr:"has_value"`
	Rating      string  `expr:"rating"`
	Failed      bool    `expr:"failed"`
	MaxSeverity string  `expr:"max_severity"`
}

// noSeverity is the max_severity of a metric without diagnostics.
const noSeverity = "None"

// programs caches compiled conditions by source text.
var programs sync.Map

// CompileCondition compiles src once and caches it. Rules loaded from a
// suite file call this up front so a typo fails before any chat call.
func CompileCondition(src string) (*vm.Program, error) {
	if p, ok := programs.Load(src); ok {
		return p.(*vm.Program), nil
	}
	p, err := expr.Compile(src, expr.Env(conditionEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: condition %q: %v", domain.ErrInvalidConfiguration, src, err)
	}
	actual, _ := programs.LoadOrStore(src, p)
	return actual.(*vm.Program), nil
}

func evalCondition(src string, m domain.Metric) (bool, error) {
	program, err := CompileCondition(src)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, newConditionEnv(m))
	if err != nil {
		return false, fmt.Errorf("run condition: %w", err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("condition returned %T, want bool", out)
	}
	return ok, nil
}

func newConditionEnv(m domain.Metric) conditionEnv {
	rating, failed := observedRating(m)
	env := conditionEnv{
		HasValue:    m.Value != nil,
		Rating:      rating.String(),
		Failed:      failed,
		MaxSeverity: noSeverity,
	}
	if m.Value != nil {
		env.Value = *m.Value
	}
	if s := m.MaxSeverity(); s != 0 {
		env.MaxSeverity = s.String()
	}
	return env
}
