package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/ekisa-team/modma/internal/envvar"
)

//go:embed schema.json
var embeddedSchema string

const embeddedSchemaURL = "modma.schema.json"

// LoadAndValidate loads and validates the configuration.
// An empty schemaPath validates against the embedded schema.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	return Parse(data, schemaPath)
}

// Parse validates raw YAML and decodes it on top of the defaults.
func Parse(data []byte, schemaPath string) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}

	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load returns the config at path, or the defaults when path does not exist.
// Environment overrides are applied in both cases.
func Load(path, schemaPath string) (*Config, error) {
	var cfg *Config
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg = Default()
	} else {
		loaded, err := LoadAndValidate(path, schemaPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	for _, name := range ArtifactNames() {
		a, ok := c.Artifacts[name]
		if !ok {
			return fmt.Errorf("config: artifact %q is not configured", name)
		}
		if a.File == "" {
			return fmt.Errorf("config: artifact %q has no file name", name)
		}
		if _, err := a.GetSource(); err != nil {
			return fmt.Errorf("config: artifact %q: %w", name, err)
		}
	}

	pre := c.Pipeline.Preprocess
	if pre.LowFreq >= pre.HighFreq {
		return fmt.Errorf("config: preprocess l_freq %.2f must be below h_freq %.2f", pre.LowFreq, pre.HighFreq)
	}
	if pre.TMin >= pre.TMax {
		return fmt.Errorf("config: preprocess tmin %.3f must be below tmax %.3f", pre.TMin, pre.TMax)
	}

	inf := c.Pipeline.Inference
	if inf.LowFreq >= inf.HighFreq {
		return fmt.Errorf("config: inference l_freq %.2f must be below h_freq %.2f", inf.LowFreq, inf.HighFreq)
	}
	if inf.HighFreq >= inf.SFreq/2 {
		return fmt.Errorf("config: inference h_freq %.2f must be below Nyquist (%.2f)", inf.HighFreq, inf.SFreq/2)
	}

	return nil
}

// ApplyEnv overrides directories and ports from the environment.
func ApplyEnv(cfg *Config) error {
	overrides := map[string]*string{
		envvar.ModelDir:            &cfg.Storage.ModelsDir,
		envvar.UploadDir:           &cfg.Storage.UploadsDir,
		envvar.PreprocessOutputDir: &cfg.Storage.ProcessedDir,
		envvar.FrontendDir:         &cfg.Storage.FrontendDir,
		envvar.OTELEndpoint:        &cfg.Telemetry.OTELEndpoint,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ports := map[string]*int{
		envvar.ModmaServerHTTPPort: &cfg.Server.HTTPPort,
		envvar.ModmaServerGRPCPort: &cfg.Server.GRPCPort,
	}
	for key, dst := range ports {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", key, v, err)
		}
		*dst = port
	}

	return nil
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	if schemaPath != "" {
		return jsonschema.Compile(schemaPath)
	}

	return jsonschema.CompileString(embeddedSchemaURL, embeddedSchema)
}
