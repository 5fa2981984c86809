package config

import (
	"encoding/json"
	"os"
	"strings"
)

// FormatSpec describes one supported upload format
type FormatSpec struct {
	Extension      string   `json:"extension"`
	ContentTypes   []string `json:"content_types"`
	Features       []string `json:"features"`
	TimeMultiplier float64  `json:"time_multiplier"`
}

// DefaultFormats returns the built-in format registry
func DefaultFormats() []FormatSpec {
	return []FormatSpec{
		{
			Extension:      "txt",
			ContentTypes:   []string{"text/plain"},
			Features:       []string{"encoding_detection", "chunking"},
			TimeMultiplier: 1.0,
		},
		{
			Extension:      "md",
			ContentTypes:   []string{"text/markdown", "text/plain"},
			Features:       []string{"header_normalization", "table_flattening", "link_extraction", "chunking"},
			TimeMultiplier: 1.2,
		},
		{
			Extension:      "csv",
			ContentTypes:   []string{"text/csv", "text/plain", "application/csv"},
			Features:       []string{"table_flattening", "column_type_detection", "chunking"},
			TimeMultiplier: 1.5,
		},
	}
}

// FormatFor looks up a spec by extension, with or without the leading dot
func FormatFor(specs []FormatSpec, ext string) (FormatSpec, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, spec := range specs {
		if spec.Extension == ext {
			return spec, true
		}
	}
	return FormatSpec{}, false
}

// LoadFormatsFromFile reads a format registry override from a JSON file
func LoadFormatsFromFile(path string) ([]FormatSpec, error) {
	//open the file
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	//decode the json data
	var specs []FormatSpec
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&specs); err != nil {
		return nil, err
	}

	return specs, nil
}
