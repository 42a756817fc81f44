package patterns

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseExtension decodes a YAML extension document.
func ParseExtension(data []byte) (Extension, error) {
	var ext Extension
	if err := yaml.Unmarshal(data, &ext); err != nil {
		return Extension{}, fmt.Errorf("decode pattern extension: %w", err)
	}
	return ext, nil
}

// LoadFile returns Default() extended with the rules in path. An empty path
// yields the default bank.
func LoadFile(path string) (*Bank, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	ext, err := ParseExtension(data)
	if err != nil {
		return nil, err
	}
	bank, err := Default().Extend(ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bank, nil
}
