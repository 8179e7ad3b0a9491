package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// OutputJSON marshals the provided data as indented JSON and prints it to stdout.
func OutputJSON(data any) error {
	return WriteFormatted(os.Stdout, FormatJSON, data)
}

// OutputYAML marshals the provided data as YAML and prints it to stdout.
func OutputYAML(data any) error {
	return WriteFormatted(os.Stdout, FormatYAML, data)
}

// WriteFormatted writes data to w as JSON or YAML.
func WriteFormatted(w io.Writer, format string, data any) error {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(format) {
	case FormatJSON:
		out, err = MarshalJSON(data)
		if err == nil {
			out = append(out, '\n')
		}
	case FormatYAML, "yml":
		out, err = MarshalYAML(data)
	default:
		return fmt.Errorf("unsupported output format %q (use json or yaml)", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// MarshalJSON marshals the provided data as indented JSON.
func MarshalJSON(data any) ([]byte, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return jsonData, nil
}

// MarshalYAML marshals the provided data as YAML.
func MarshalYAML(data any) ([]byte, error) {
	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return yamlData, nil
}
