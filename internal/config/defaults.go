package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Artifact identifiers. All four must be present for inference.
const (
	ArtifactCSP          = "csp"
	ArtifactTangentSpace = "tangent_space"
	ArtifactScaler       = "scaler"
	ArtifactClassifier   = "classifier"
)

const (
	defaultHTTPPort        = 8000
	defaultGRPCPort        = 9000
	defaultMaxUploadBytes  = 1 << 30
	defaultBodyReadTimeout = 5 * time.Minute
	defaultArtifactRepo    = "hysam50epc/raglandsam-EEG_models"
)

// ArtifactNames returns the artifact identifiers in load order.
func ArtifactNames() []string {
	return []string{ArtifactCSP, ArtifactTangentSpace, ArtifactScaler, ArtifactClassifier}
}

// DefaultHTTPPort returns the default HTTP port.
func DefaultHTTPPort() int {
	return defaultHTTPPort
}

// DefaultGRPCPort returns the default gRPC port.
func DefaultGRPCPort() int {
	return defaultGRPCPort
}

// Default returns a configuration that works without a config file.
func Default() *Config {
	artifact := func(file string) ArtifactConfig {
		return ArtifactConfig{
			File: file,
			Source: SourceConfig{HuggingFace: &HuggingFaceSource{
				Repo:     defaultArtifactRepo,
				RepoType: "dataset",
				Revision: "main",
				Filename: file,
			}},
		}
	}

	return &Config{
		Version: "1",
		Storage: StorageConfig{
			ModelsDir:    DefaultModelsPath(),
			UploadsDir:   "uploads",
			ProcessedDir: "processed",
			FrontendDir:  "public",
		},
		Server: ServerConfig{
			HTTPPort:        defaultHTTPPort,
			GRPCPort:        defaultGRPCPort,
			MaxUploadBytes:  defaultMaxUploadBytes,
			BodyReadTimeout: defaultBodyReadTimeout,
		},
		Bootstrap: BootstrapConfig{Strict: true},
		Artifacts: map[string]ArtifactConfig{
			ArtifactCSP:          artifact("csp_pipeline.json"),
			ArtifactTangentSpace: artifact("global_tangent_space.json"),
			ArtifactScaler:       artifact("scaler.json"),
			ArtifactClassifier:   artifact("svm_model.json"),
		},
		Pipeline: PipelineConfig{
			Preprocess: PreprocessConfig{
				ReferenceChannel: "E129",
				CueMarker:        "cue",
				LowFreq:          1,
				HighFreq:         45,
				TMin:             -0.2,
				TMax:             0.8,
			},
			Inference: InferenceConfig{
				SFreq:             250,
				LowFreq:           8,
				HighFreq:          30,
				FilterOrder:       4,
				CovarianceEpsilon: 1e-6,
			},
		},
		Telemetry: TelemetryConfig{ServiceName: "modma"},
	}
}

// DefaultConfigPath returns the default path for the modma config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "modma", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "modma")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "modma")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "modma")
		}
		return filepath.Join(home, ".config", "modma")
	}
}

// DefaultModelsPath returns the default path for the modma artifacts directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "modma", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "modma", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "modma", "models")
	default:
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "modma", "models")
		}
		return filepath.Join(home, ".cache", "modma", "models")
	}
}
