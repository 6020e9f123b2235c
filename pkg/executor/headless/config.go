package headless

import "fmt"

// ArtifactConfig defines artifact generation configuration
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// Individual format flags
	JSON     bool `yaml:"json" json:"json"`
	Markdown bool `yaml:"markdown" json:"markdown"`
}

// DefaultArtifactConfig returns artifact settings with writing disabled.
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		Enabled:   false,
		OutputDir: ".forage/artifacts",
		JSON:      true,
		Markdown:  true,
	}
}

// Validate validates the artifact configuration
func (c ArtifactConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.OutputDir == "" {
		return fmt.Errorf("artifacts.output_dir is required when artifacts are enabled")
	}
	if !c.JSON && !c.Markdown {
		return fmt.Errorf("artifacts enabled but no format selected")
	}
	return nil
}
