// Package config loads optional project-level defaults for the laythe
// binary from a laythe.yaml file in the current directory, the way a
// build tool's YAML-configured defaults work — grounded on the pack's
// yaml.v3 usage (funvibe-funxy's go.mod carries gopkg.in/yaml.v3
// directly for exactly this kind of declarative config). Flags passed
// on the command line always take precedence; this only supplies
// defaults when a flag wasn't set.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// File is the shape of laythe.yaml.
type File struct {
	NoColor      bool    `yaml:"no_color"`
	Debug        bool    `yaml:"debug"`
	GCTrace      bool    `yaml:"gc_trace"`
	StressGC     bool    `yaml:"stress_gc"`
	GrowthFactor float64 `yaml:"growth_factor"`
}

// Load reads path, returning a zero-value File and no error if the file
// simply doesn't exist.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, nil
		}
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, err
	}
	return f, nil
}
