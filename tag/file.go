package tag

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// specFields is the structured YAML shape of a single tag. Omitted flags
// default to true.
type specFields struct {
	Enabled *bool `yaml:"enabled"`
	Error   *bool `yaml:"error"`
	Code    *int  `yaml:"code"`
}

// ParseSpecs parses a YAML mapping of tag name to tag state. Each value is
// either a bare boolean (legacy shape, coerced to enabled=value with errors
// enabled) or a mapping with optional enabled, error and code keys. Document
// order is preserved.
func ParseSpecs(data []byte) ([]Spec, error) {
	var doc yaml.MapSlice

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}

	specs := make([]Spec, 0, len(doc))

	for _, item := range doc {
		name, ok := item.Key.(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: tag name %v is not a string", ErrInvalidSpec, item.Key)
		}

		spec, err := parseSpec(Normalize(name), item.Value)
		if err != nil {
			return nil, err
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

// ReadSpecs reads and parses a YAML tag file.
func ReadSpecs(path string) ([]Spec, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Tag file path from CLI flag is expected.
	if err != nil {
		return nil, fmt.Errorf("read tag file: %w", err)
	}

	specs, err := ParseSpecs(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return specs, nil
}

func parseSpec(name string, value any) (Spec, error) {
	switch v := value.(type) {
	case bool:
		return Spec{Name: name, Enabled: v, Error: true}, nil
	case nil:
		return Spec{Name: name, Enabled: true, Error: true}, nil
	}

	raw, err := yaml.Marshal(value)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: tag %q: %w", ErrInvalidSpec, name, err)
	}

	var fields specFields

	err = yaml.UnmarshalWithOptions(raw, &fields, yaml.Strict())
	if err != nil {
		return Spec{}, fmt.Errorf("%w: tag %q: %w", ErrInvalidSpec, name, err)
	}

	spec := Spec{
		Name:    name,
		Enabled: true,
		Error:   true,
		Code:    fields.Code,
	}
	if fields.Enabled != nil {
		spec.Enabled = *fields.Enabled
	}

	if fields.Error != nil {
		spec.Error = *fields.Error
	}

	return spec, nil
}
