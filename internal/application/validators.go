package application

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ValidateEvaluatorParameters checks the parameters of a built-in
// evaluator type. Types registered at runtime are not checked here; their
// factories validate on creation.
func ValidateEvaluatorParameters(evaluatorType string, params yaml.Node) error {
	paramMap, err := decodeParameters(params)
	if err != nil {
		return err
	}

	switch evaluatorType {
	case EvaluatorCoherence, EvaluatorRelevance, EvaluatorFluency:
		return validateJudgeConfigParams(paramMap)
	case EvaluatorJudge:
		return validateCustomJudgeParams(paramMap)
	case EvaluatorSimilarity:
		return validateSimilarityParams(paramMap)
	default:
		return nil
	}
}

func decodeParameters(params yaml.Node) (map[string]any, error) {
	paramMap := make(map[string]any)
	if params.Kind == 0 {
		return paramMap, nil
	}
	if err := params.Decode(&paramMap); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	return paramMap, nil
}

// validateJudgeConfigParams checks the optional judge tuning knobs shared
// by every judge-backed evaluator.
func validateJudgeConfigParams(params map[string]any) error {
	if err := numberInRange(params, "temperature", 0, 2); err != nil {
		return err
	}
	if err := numberInRange(params, "max_tokens", 50, 4000); err != nil {
		return err
	}
	return numberInRange(params, "min_confidence", 0, 1)
}

func validateCustomJudgeParams(params map[string]any) error {
	metric, ok := params["metric"].(string)
	if !ok || strings.TrimSpace(metric) == "" {
		return fmt.Errorf("judge requires a non-empty 'metric' parameter")
	}
	prompt, ok := params["prompt"].(string)
	if !ok || strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("judge requires a non-empty 'prompt' parameter")
	}
	return validateJudgeConfigParams(params)
}

func validateSimilarityParams(params map[string]any) error {
	reference, ok := params["reference"].(string)
	if !ok || strings.TrimSpace(reference) == "" {
		return fmt.Errorf("similarity requires a non-empty 'reference' parameter")
	}
	if cs, ok := params["case_sensitive"]; ok {
		if _, ok := cs.(bool); !ok {
			return fmt.Errorf("case_sensitive must be a boolean")
		}
	}
	return nil
}

func numberInRange(params map[string]any, key string, lo, hi float64) error {
	raw, ok := params[key]
	if !ok {
		return nil
	}
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	default:
		return fmt.Errorf("%s must be a number", key)
	}
	if v < lo || v > hi {
		return fmt.Errorf("%s must be between %g and %g", key, lo, hi)
	}
	return nil
}

// RegisterSuiteValidators registers the custom struct-tag validators used
// by SuiteConfig.
func RegisterSuiteValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}
	if err := v.RegisterValidation("modelformat", validateModelFormat); err != nil {
		return fmt.Errorf("failed to register modelformat validator: %w", err)
	}
	if err := v.RegisterValidation("scenarioname", validateScenarioName); err != nil {
		return fmt.Errorf("failed to register scenarioname validator: %w", err)
	}
	return nil
}

// validateSemver accepts X.Y.Z where X, Y and Z are non-negative integers.
func validateSemver(fl validator.FieldLevel) bool {
	var major, minor, patch int
	var rest string
	n, _ := fmt.Sscanf(fl.Field().String()+" ", "%d.%d.%d%s", &major, &minor, &patch, &rest)
	return n == 3 && major >= 0 && minor >= 0 && patch >= 0
}

// validateModelFormat accepts "provider/model" with both parts non-empty.
func validateModelFormat(fl validator.FieldLevel) bool {
	model := fl.Field().String()
	if model == "" {
		return true
	}
	provider, name, ok := strings.Cut(model, "/")
	return ok && provider != "" && name != ""
}

// validateScenarioName rejects names that cannot be used as a file name.
func validateScenarioName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}
