// Package requestfile reads optimization requests from YAML or JSON files.
package requestfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/gridflex/core/model"
)

// Format is the encoding of a request file.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// FormatOf guesses the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return YAML, nil
	case ".json":
		return JSON, nil
	default:
		return "", fmt.Errorf("unsupported request format: %s", ext)
	}
}

// Load reads the request stored at path.
func Load(path string) (model.Request, error) {
	f, err := FormatOf(path)
	if err != nil {
		return model.Request{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Request{}, err
	}
	return Decode(bytes.NewReader(data), f)
}

// Decode reads one request. Unknown fields are rejected so that typos in
// asset parameters do not silently fall back to defaults.
func Decode(r io.Reader, f Format) (model.Request, error) {
	var req model.Request
	switch f {
	case YAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&req); err != nil {
			return model.Request{}, fmt.Errorf("decode yaml request: %w", err)
		}
	case JSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return model.Request{}, fmt.Errorf("decode json request: %w", err)
		}
	default:
		return model.Request{}, fmt.Errorf("unsupported request format: %s", f)
	}
	return req, nil
}
