package domain

import (
	"fmt"
	"strings"
)

// Rating is a qualitative bucket derived from a numeric score.
// Ratings are ordered: Unacceptable < Poor < Average < Good < Exceptional.
type Rating int

// Rating values in ascending order of quality.
const (
	RatingUnacceptable Rating = iota + 1
	RatingPoor
	RatingAverage
	RatingGood
	RatingExceptional
)

var ratingNames = map[Rating]string{
	RatingUnacceptable: "Unacceptable",
	RatingPoor:         "Poor",
	RatingAverage:      "Average",
	RatingGood:         "Good",
	RatingExceptional:  "Exceptional",
}

// AllRatings returns every rating in ascending order.
func AllRatings() []Rating {
	return []Rating{RatingUnacceptable, RatingPoor, RatingAverage, RatingGood, RatingExceptional}
}

// String returns the rating name.
func (r Rating) String() string {
	if name, ok := ratingNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// IsValid reports whether r is a member of the rating enumeration.
func (r Rating) IsValid() bool {
	_, ok := ratingNames[r]
	return ok
}

// ParseRating converts a case-insensitive rating name into a Rating.
func ParseRating(s string) (Rating, error) {
	for r, name := range ratingNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown rating %q", ErrInvalidConfiguration, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("cannot marshal invalid rating %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rating) UnmarshalText(text []byte) error {
	parsed, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Severity ranks a Diagnostic. Severities are ordered:
// Informational < Warning < Error.
type Severity int

// Severity values in ascending order.
const (
	SeverityInformational Severity = iota + 1
	SeverityWarning
	SeverityError
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInformational:
		return "Informational"
	case SeverityWarning:
		return "Warning"
	case SeverityError:
		return "Error"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ParseSeverity converts a case-insensitive severity name into a Severity.
// "info" and "warn" are accepted as short forms.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "informational", "info":
		return SeverityInformational, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	default:
		return 0, fmt.Errorf("%w: unknown severity %q", ErrInvalidConfiguration, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Diagnostic describes an anomaly encountered while producing a metric,
// such as a judge refusal or an unparsable score. It is distinct from the
// metric's value.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// InformationalDiagnostic returns a diagnostic at Informational severity.
func InformationalDiagnostic(msg string) Diagnostic {
	return Diagnostic{Severity: SeverityInformational, Message: msg}
}

// WarningDiagnostic returns a diagnostic at Warning severity.
func WarningDiagnostic(msg string) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Message: msg}
}

// ErrorDiagnostic returns a diagnostic at Error severity.
func ErrorDiagnostic(msg string) Diagnostic {
	return Diagnostic{Severity: SeverityError, Message: msg}
}

// Interpretation is the pass/fail reading of a metric value.
type Interpretation struct {
	// Rating is the qualitative bucket for the value.
	Rating Rating `json:"rating"`

	// Failed is true when the value does not meet the evaluator's passing bar
	// or the value could not be produced at all.
	Failed bool `json:"failed"`

	// Reason explains the interpretation.
	Reason string `json:"reason,omitempty"`
}

// Score scale used by the LLM-judged evaluators.
const (
	MinScore = 1.0
	MaxScore = 5.0

	// MinimumPassingScore is the lowest score interpreted as passing.
	MinimumPassingScore = 4.0
)

// InterpretScore maps a score on the 1-5 scale to an Interpretation.
// Scores in (4,5] are Exceptional, (3,4] Good, (2,3] Average, (1,2] Poor and
// anything at or below 1 is Unacceptable. Scores below MinimumPassingScore
// are marked failed.
func InterpretScore(value float64) Interpretation {
	var rating Rating
	switch {
	case value > 4.0:
		rating = RatingExceptional
	case value > 3.0:
		rating = RatingGood
	case value > 2.0:
		rating = RatingAverage
	case value > 1.0:
		rating = RatingPoor
	default:
		rating = RatingUnacceptable
	}

	failed := value < MinimumPassingScore
	reason := fmt.Sprintf("score %.2f is at or above the passing score of %.0f", value, MinimumPassingScore)
	if failed {
		reason = fmt.Sprintf("score %.2f is below the passing score of %.0f", value, MinimumPassingScore)
	}
	return Interpretation{Rating: rating, Failed: failed, Reason: reason}
}

// Metric is a named numeric result produced by an evaluator.
type Metric struct {
	// Name uniquely identifies the metric within an EvaluationResult.
	Name string `json:"name"`

	// Value is the numeric score. Nil means no score could be produced.
	Value *float64 `json:"value,omitempty"`

	// Reason is the evaluator's free-text rationale for the value.
	Reason string `json:"reason,omitempty"`

	// Interpretation is the pass/fail reading of Value.
	Interpretation *Interpretation `json:"interpretation,omitempty"`

	// Diagnostics lists anomalies encountered while scoring.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`

	// Metadata carries evaluator-specific details such as the judge model
	// or token usage.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewMetric returns a metric with the given name and value, interpreted on
// the 1-5 scale.
func NewMetric(name string, value float64, reason string) Metric {
	interp := InterpretScore(value)
	return Metric{
		Name:           name,
		Value:          &value,
		Reason:         reason,
		Interpretation: &interp,
	}
}

// NewFailedMetric returns a metric that could not be scored. It carries no
// value, an Unacceptable failed interpretation and an Error diagnostic
// describing cause.
func NewFailedMetric(name string, cause error) Metric {
	msg := "evaluation failed"
	if cause != nil {
		msg = cause.Error()
	}
	return Metric{
		Name: name,
		Interpretation: &Interpretation{
			Rating: RatingUnacceptable,
			Failed: true,
			Reason: msg,
		},
		Diagnostics: []Diagnostic{ErrorDiagnostic(msg)},
	}
}

// HasValue reports whether the metric carries a numeric value.
func (m Metric) HasValue() bool { return m.Value != nil }

// AddDiagnostic appends d to the metric's diagnostics.
func (m *Metric) AddDiagnostic(d Diagnostic) { m.Diagnostics = append(m.Diagnostics, d) }

// ContainsDiagnostics reports whether any diagnostic satisfies pred.
func (m Metric) ContainsDiagnostics(pred func(Diagnostic) bool) bool {
	for _, d := range m.Diagnostics {
		if pred(d) {
			return true
		}
	}
	return false
}

// MaxSeverity returns the highest diagnostic severity, or zero when the
// metric has no diagnostics.
func (m Metric) MaxSeverity() Severity {
	var highest Severity
	for _, d := range m.Diagnostics {
		if d.Severity > highest {
			highest = d.Severity
		}
	}
	return highest
}

// clone returns a deep copy of m.
func (m Metric) clone() Metric {
	out := m
	if m.Value != nil {
		v := *m.Value
		out.Value = &v
	}
	if m.Interpretation != nil {
		interp := *m.Interpretation
		out.Interpretation = &interp
	}
	if m.Diagnostics != nil {
		out.Diagnostics = append([]Diagnostic(nil), m.Diagnostics...)
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
