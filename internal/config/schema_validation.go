package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	servectlschema "github.com/Paintersrp/servectl/schema"
)

const schemaResource = "servectl.v1.json"

var loadConfigSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaResource, bytes.NewReader(servectlschema.ConfigV1Schema)); err != nil {
		return nil, fmt.Errorf("add config schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	return schema, nil
})

func validateAgainstSchema(doc map[string]any) error {
	schema, err := loadConfigSchema()
	if err != nil {
		return fmt.Errorf("load config schema: %w", err)
	}

	// The validator expects JSON-shaped values, so round-trip through
	// encoding/json with numbers preserved.
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(doc); err != nil {
		return fmt.Errorf("prepare config for schema validation: %w", err)
	}
	decoder := json.NewDecoder(buf)
	decoder.UseNumber()
	var normalized any
	if err := decoder.Decode(&normalized); err != nil {
		return fmt.Errorf("prepare config for schema validation: %w", err)
	}

	err = schema.Validate(normalized)
	if err == nil {
		return nil
	}
	var vErr *jsonschema.ValidationError
	if errors.As(err, &vErr) {
		lines := collectViolations(vErr, nil)
		return fmt.Errorf("schema validation failed:\n%s", strings.Join(lines, "\n"))
	}
	return fmt.Errorf("schema validation failed: %w", err)
}

// collectViolations flattens the leaf causes of a validation error into
// "- location: message" lines.
func collectViolations(err *jsonschema.ValidationError, out []string) []string {
	if len(err.Causes) == 0 {
		return append(out, fmt.Sprintf("- %s: %s", instanceLocation(err.InstanceLocation), err.Message))
	}
	for _, cause := range err.Causes {
		out = collectViolations(cause, out)
	}
	return out
}

func instanceLocation(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "document"
	}
	var b strings.Builder
	for _, segment := range strings.Split(ptr, "/") {
		decoded := strings.ReplaceAll(strings.ReplaceAll(segment, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(decoded); err == nil {
			fmt.Fprintf(&b, "[%s]", decoded)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(decoded)
	}
	return b.String()
}
