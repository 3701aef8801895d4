package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/impedance-lab/ubcal/internal/utils"
	"github.com/impedance-lab/ubcal/schemas"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

// jobSchema is the compiled JSON Schema for job files.
var jobSchema *jsonschema.Schema

// projectSchema is the compiled JSON Schema for .ubcal.yaml.
var projectSchema *jsonschema.Schema

func init() {
	jobSchema = mustCompileSchema(schemas.JobSchemaJSON, "job.schema.json")
	projectSchema = mustCompileSchema(schemas.ProjectSchemaJSON, "project.schema.json")
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// ValidateJobFile validates the job file at path against the JSON schema.
// Schema violations are returned as messages; err is only set when the file
// cannot be read.
func ValidateJobFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}
	return ValidateJobBytes(data), nil
}

// ValidateJobFiles validates every job file matching the glob patterns,
// resolved against baseDir. The result maps each file with violations, relative
// to baseDir, to its messages.
func ValidateJobFiles(baseDir string, patterns []string) (map[string][]string, error) {
	errs := make(map[string][]string)
	for _, pattern := range utils.ResolvePaths(patterns, baseDir) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("job pattern %q: %w", pattern, err)
		}
		for _, file := range matches {
			msgs, err := ValidateJobFile(file)
			if err != nil {
				return nil, err
			}
			if len(msgs) == 0 {
				continue
			}
			rel, relErr := filepath.Rel(baseDir, file)
			if relErr != nil {
				rel = file
			}
			errs[rel] = msgs
		}
	}
	return errs, nil
}

// ValidateJobBytes validates raw YAML bytes against the job schema.
func ValidateJobBytes(data []byte) []string {
	return validateYAMLBytes(jobSchema, data)
}

// ValidateProjectBytes validates raw YAML bytes against the project configuration schema.
func ValidateProjectBytes(data []byte) []string {
	return validateYAMLBytes(projectSchema, data)
}

func validateYAMLBytes(schema *jsonschema.Schema, data []byte) []string {
	// Parse YAML into generic any
	var yamlDoc any
	if err := yaml.Unmarshal(data, &yamlDoc); err != nil {
		return []string{fmt.Sprintf("YAML parse error: %v", err)}
	}

	// Convert to JSON-compatible types (yaml.v3 uses map[string]any which is fine)
	jsonCompatible := convertToJSONCompatible(yamlDoc)

	return validateAgainstSchema(schema, jsonCompatible)
}

func validateAgainstSchema(schema *jsonschema.Schema, instance any) []string {
	err := schema.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

// convertToJSONCompatible converts YAML-decoded values to JSON-compatible types.
// yaml.v3 decodes to map[string]any which is fine, but integers need to stay as-is.
func convertToJSONCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v2 := range val {
			result[k] = convertToJSONCompatible(v2)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, v2 := range val {
			result[i] = convertToJSONCompatible(v2)
		}
		return result
	default:
		return val
	}
}
