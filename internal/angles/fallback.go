package angles

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FallbackAngle is one entry of the generic angle set used when the model
// cannot supply enough framings. PromptTemplate takes the query via %s.
type FallbackAngle struct {
	Label          string `yaml:"label"`
	PromptTemplate string `yaml:"prompt_template"`
}

type fallbackFile struct {
	Angles []FallbackAngle `yaml:"angles"`
}

// LoadFallbackAngles reads the fallback angle set from a YAML file. An empty
// path or unreadable/invalid file yields the compiled-in defaults.
func LoadFallbackAngles(path string) ([]FallbackAngle, error) {
	if path == "" {
		return defaultFallbackAngles(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return defaultFallbackAngles(), fmt.Errorf("read fallback angles: %w", err)
	}

	var f fallbackFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return defaultFallbackAngles(), fmt.Errorf("parse fallback angles: %w", err)
	}

	var out []FallbackAngle
	for _, a := range f.Angles {
		if strings.TrimSpace(a.Label) == "" || !strings.Contains(a.PromptTemplate, "%s") {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return defaultFallbackAngles(), fmt.Errorf("fallback angles file %s has no usable entries", path)
	}
	return out, nil
}

func defaultFallbackAngles() []FallbackAngle {
	return []FallbackAngle{
		{Label: "overview", PromptTemplate: "Give a broad overview of: %s"},
		{Label: "risks", PromptTemplate: "What are the main risks and challenges related to: %s"},
		{Label: "recent developments", PromptTemplate: "What are the most recent developments concerning: %s"},
		{Label: "opportunities", PromptTemplate: "What opportunities exist in the area of: %s"},
		{Label: "key players", PromptTemplate: "Who are the key players and stakeholders for: %s"},
		{Label: "regional differences", PromptTemplate: "How does the picture differ across regions for: %s"},
		{Label: "long-term outlook", PromptTemplate: "What is the long-term outlook for: %s"},
		{Label: "open questions", PromptTemplate: "What remains uncertain or debated about: %s"},
	}
}
