package reporting

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/ahrav/go-qualitygate/internal/ports"
)

//go:embed schema/scenario_run.schema.json
var scenarioRunSchema []byte

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(scenarioRunSchema)
	if err != nil {
		return nil, fmt.Errorf("compile scenario run schema: %w", err)
	}
	return schema, nil
})

// ValidateScenarioRunJSON checks data against the scenario run schema. A
// non-conforming record yields an error wrapping ports.ErrSchemaViolation.
func ValidateScenarioRunJSON(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("%w: %v", ports.ErrSchemaViolation, result.Errors)
}
