package tracker

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// handleFile is the layout of an `add --file` list:
//
//	handles:
//	  - "@alpha"
//	  - beta
//
// A bare YAML sequence of handles is accepted as well.
type handleFile struct {
	Handles []string `yaml:"handles"`
}

// LoadHandles reads a YAML handle list, dropping blank entries.
func LoadHandles(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read handle file: %w", err)
	}
	return ParseHandles(raw)
}

func ParseHandles(raw []byte) ([]string, error) {
	var doc handleFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		var list []string
		if listErr := yaml.Unmarshal(raw, &list); listErr != nil {
			return nil, fmt.Errorf("parse handle file: %w", err)
		}
		doc.Handles = list
	}

	out := make([]string, 0, len(doc.Handles))
	for _, h := range doc.Handles {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out, nil
}
