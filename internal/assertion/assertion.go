// Package assertion checks evaluation results against quality rules. Every
// rule is evaluated and every violation is collected before a single error
// is reported, so one failing metric never hides another.
package assertion

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ahrav/go-qualitygate/internal/domain"
)

// ErrAssertionViolation is wrapped by every ViolationError.
var ErrAssertionViolation = errors.New("assertion violation")

// Check names identify which part of a Rule a Violation failed.
const (
	CheckPresent   = "present"
	CheckPassed    = "passed"
	CheckRating    = "rating"
	CheckSeverity  = "severity"
	CheckMinValue  = "min_value"
	CheckCondition = "condition"
)

// Rule describes what an acceptable metric looks like. Zero-valued fields
// are not checked, except that the metric must always exist and must not be
// marked failed.
type Rule struct {
	// Metric names the metric the rule applies to.
	Metric string `yaml:"metric" validate:"required"`

	// ExpectedRatings lists the acceptable ratings. Empty accepts any rating.
	ExpectedRatings []domain.Rating `yaml:"expected_ratings"`

	// MinValue is the lowest acceptable value. A metric without a value
	// violates any MinValue.
	MinValue *float64 `yaml:"min_value"`

	// FailSeverity fails the rule when any diagnostic is at or above it.
	FailSeverity *domain.Severity `yaml:"fail_severity"`

	// Condition is an optional boolean expression over value, has_value,
	// rating, failed and max_severity.
	Condition string `yaml:"condition"`
}

// StandardRule is the default bar for a 1-5 judge metric: rated Good or
// Exceptional, a value of at least 4 and no Warning or Error diagnostics.
func StandardRule(metric string) Rule {
	minValue := domain.MinimumPassingScore
	severity := domain.SeverityWarning
	return Rule{
		Metric:          metric,
		ExpectedRatings: []domain.Rating{domain.RatingGood, domain.RatingExceptional},
		MinValue:        &minValue,
		FailSeverity:    &severity,
	}
}

// StandardRules returns StandardRule for each metric.
func StandardRules(metrics ...string) []Rule {
	rules := make([]Rule, 0, len(metrics))
	for _, m := range metrics {
		rules = append(rules, StandardRule(m))
	}
	return rules
}

// Violation records one failed check.
type Violation struct {
	Metric string
	Check  string
	// Observed describes what the metric actually carried.
	Observed string
	// Expected describes what the rule required.
	Expected string
	// Reason is the evaluator's rationale for the metric, if any.
	Reason string
}

func (v Violation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s check failed", v.Metric, v.Check)
	if v.Observed != "" {
		fmt.Fprintf(&b, ": observed %s", v.Observed)
	}
	if v.Expected != "" {
		fmt.Fprintf(&b, ", expected %s", v.Expected)
	}
	if v.Reason != "" {
		fmt.Fprintf(&b, " (reason: %s)", v.Reason)
	}
	return b.String()
}

// ViolationError lists every violation found by a check.
type ViolationError struct {
	Violations []Violation
}

func (e *ViolationError) Error() string {
	if len(e.Violations) == 1 {
		return "assertion violation: " + e.Violations[0].String()
	}
	lines := make([]string, 0, len(e.Violations)+1)
	lines = append(lines, fmt.Sprintf("%d assertion violations:", len(e.Violations)))
	for _, v := range e.Violations {
		lines = append(lines, "  - "+v.String())
	}
	return strings.Join(lines, "\n")
}

// Unwrap returns ErrAssertionViolation.
func (e *ViolationError) Unwrap() error { return ErrAssertionViolation }

// Violations accumulates violations across any number of checks. The zero
// value is ready to use. It is not safe for concurrent use.
type Violations struct {
	items []Violation
}

// Add records v.
func (vs *Violations) Add(v Violation) { vs.items = append(vs.items, v) }

// Len returns the number of recorded violations.
func (vs *Violations) Len() int { return len(vs.items) }

// All returns a copy of the recorded violations in insertion order.
func (vs *Violations) All() []Violation { return slices.Clone(vs.items) }

// Err returns a *ViolationError holding every violation, or nil when none
// were recorded.
func (vs *Violations) Err() error {
	if len(vs.items) == 0 {
		return nil
	}
	return &ViolationError{Violations: vs.All()}
}

// Check evaluates every rule against result and returns a *ViolationError
// listing all violations, or nil.
func Check(result *domain.EvaluationResult, rules ...Rule) error {
	var vs Violations
	for _, r := range rules {
		vs.Check(result, r)
	}
	return vs.Err()
}

// Check evaluates r against result and records any violations.
func (vs *Violations) Check(result *domain.EvaluationResult, r Rule) {
	if result == nil {
		vs.Add(Violation{Metric: r.Metric, Check: CheckPresent, Observed: "no evaluation result", Expected: "metric present"})
		return
	}
	m, err := result.Get(r.Metric)
	if err != nil {
		vs.Add(Violation{Metric: r.Metric, Check: CheckPresent, Observed: "missing", Expected: "metric present"})
		return
	}

	rating, failed := observedRating(m)
	if failed {
		v := Violation{Metric: m.Name, Check: CheckPassed, Observed: describe(m), Expected: "not failed", Reason: m.Reason}
		if m.Interpretation != nil && m.Interpretation.Reason != "" && v.Reason == "" {
			v.Reason = m.Interpretation.Reason
		}
		vs.Add(v)
	}

	if len(r.ExpectedRatings) > 0 && !slices.Contains(r.ExpectedRatings, rating) {
		vs.Add(Violation{
			Metric:   m.Name,
			Check:    CheckRating,
			Observed: describe(m),
			Expected: "one of " + joinRatings(r.ExpectedRatings),
			Reason:   m.Reason,
		})
	}

	if r.FailSeverity != nil {
		for _, d := range m.Diagnostics {
			if d.Severity >= *r.FailSeverity {
				vs.Add(Violation{
					Metric:   m.Name,
					Check:    CheckSeverity,
					Observed: fmt.Sprintf("%s diagnostic %q", d.Severity, d.Message),
					Expected: "diagnostics below " + r.FailSeverity.String(),
					Reason:   m.Reason,
				})
			}
		}
	}

	if r.MinValue != nil && (m.Value == nil || *m.Value < *r.MinValue) {
		vs.Add(Violation{
			Metric:   m.Name,
			Check:    CheckMinValue,
			Observed: describe(m),
			Expected: fmt.Sprintf("value >= %.2f", *r.MinValue),
			Reason:   m.Reason,
		})
	}

	if r.Condition != "" {
		ok, err := evalCondition(r.Condition, m)
		switch {
		case err != nil:
			vs.Add(Violation{
				Metric:   m.Name,
				Check:    CheckCondition,
				Observed: "error: " + err.Error(),
				Expected: r.Condition,
				Reason:   m.Reason,
			})
		case !ok:
			vs.Add(Violation{
				Metric:   m.Name,
				Check:    CheckCondition,
				Observed: describe(m),
				Expected: r.Condition,
				Reason:   m.Reason,
			})
		}
	}
}

// observedRating treats a metric without an interpretation as an
// unacceptable, failed one.
func observedRating(m domain.Metric) (domain.Rating, bool) {
	if m.Interpretation == nil {
		return domain.RatingUnacceptable, true
	}
	return m.Interpretation.Rating, m.Interpretation.Failed
}

func describe(m domain.Metric) string {
	rating, _ := observedRating(m)
	if m.Value == nil {
		return fmt.Sprintf("no value, rated %s", rating)
	}
	return fmt.Sprintf("%.2f, rated %s", *m.Value, rating)
}

func joinRatings(rs []domain.Rating) string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}
