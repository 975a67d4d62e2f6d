package config

import (
	"errors"
	"time"
)

// SourceType represents the type of artifact source.
type SourceType string

const (
	// SourceTypeURL represents a plain HTTP(S) download link.
	SourceTypeURL SourceType = "url"

	// SourceTypeHuggingFace represents a file inside a Hugging Face repository.
	SourceTypeHuggingFace SourceType = "huggingface"

	// SourceTypeS3 represents an object in an S3-compatible bucket.
	SourceTypeS3 SourceType = "s3"
)

// Config holds the main configuration for the application.
type Config struct {
	Artifacts map[string]ArtifactConfig `json:"artifacts"           yaml:"artifacts"`
	Version   string                    `json:"version"             yaml:"version"`
	Storage   StorageConfig             `json:"storage,omitempty"   yaml:"storage,omitempty"`
	Telemetry TelemetryConfig           `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	Pipeline  PipelineConfig            `json:"pipeline,omitempty"  yaml:"pipeline,omitempty"`
	Server    ServerConfig              `json:"server,omitempty"    yaml:"server,omitempty"`
	Bootstrap BootstrapConfig           `json:"bootstrap,omitempty" yaml:"bootstrap,omitempty"`
}

// StorageConfig holds the directories the service reads from and writes to.
type StorageConfig struct {
	ModelsDir    string `json:"models_dir,omitempty"    yaml:"models_dir,omitempty"`
	UploadsDir   string `json:"uploads_dir,omitempty"   yaml:"uploads_dir,omitempty"`
	ProcessedDir string `json:"processed_dir,omitempty" yaml:"processed_dir,omitempty"`
	FrontendDir  string `json:"frontend_dir,omitempty"  yaml:"frontend_dir,omitempty"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	BodyReadTimeout time.Duration `json:"body_read_timeout,omitempty" yaml:"body_read_timeout,omitempty"`
	MaxUploadBytes  int64         `json:"max_upload_bytes,omitempty"  yaml:"max_upload_bytes,omitempty"`
	HTTPPort        int           `json:"http_port,omitempty"         yaml:"http_port,omitempty"`
	GRPCPort        int           `json:"grpc_port,omitempty"         yaml:"grpc_port,omitempty"`
}

// BootstrapConfig controls how artifact download failures are treated.
type BootstrapConfig struct {
	// Strict makes any download or load failure fatal at startup.
	Strict bool `json:"strict" yaml:"strict"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	OTELEndpoint string `json:"otel_endpoint,omitempty" yaml:"otel_endpoint,omitempty"`
	ServiceName  string `json:"service_name,omitempty"  yaml:"service_name,omitempty"`
	Insecure     bool   `json:"insecure,omitempty"      yaml:"insecure,omitempty"`
}

// PipelineConfig holds the signal-processing constants.
type PipelineConfig struct {
	Preprocess PreprocessConfig `json:"preprocess" yaml:"preprocess"`
	Inference  InferenceConfig  `json:"inference"  yaml:"inference"`
}

// PreprocessConfig holds the raw-recording normalization settings.
type PreprocessConfig struct {
	ReferenceChannel string  `json:"reference_channel" yaml:"reference_channel"`
	CueMarker        string  `json:"cue_marker"        yaml:"cue_marker"`
	LowFreq          float64 `json:"l_freq"            yaml:"l_freq"`
	HighFreq         float64 `json:"h_freq"            yaml:"h_freq"`
	TMin             float64 `json:"tmin"              yaml:"tmin"`
	TMax             float64 `json:"tmax"              yaml:"tmax"`
}

// InferenceConfig holds the feature-extraction settings.
type InferenceConfig struct {
	SFreq             float64 `json:"sfreq"              yaml:"sfreq"`
	LowFreq           float64 `json:"l_freq"             yaml:"l_freq"`
	HighFreq          float64 `json:"h_freq"             yaml:"h_freq"`
	CovarianceEpsilon float64 `json:"covariance_epsilon" yaml:"covariance_epsilon"`
	FilterOrder       int     `json:"filter_order"       yaml:"filter_order"`
}

// ArtifactConfig declares one trained artifact and where to fetch it from.
type ArtifactConfig struct {
	File   string       `json:"file"   yaml:"file"`
	Source SourceConfig `json:"source" yaml:"source"`
}

// SourceConfig wraps optional sources (only one should be set).
type SourceConfig struct {
	URL         *URLSource         `json:"url,omitempty"         yaml:"url,omitempty"`
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
	S3          *S3Source          `json:"s3,omitempty"          yaml:"s3,omitempty"`
}

// -------------------------
// Source definitions
// -------------------------

// ArtifactSource represents a source for an artifact.
type ArtifactSource interface {
	Type() SourceType
}

// URLSource represents a direct download link.
type URLSource struct {
	Href string `json:"href" yaml:"href"`
}

// Type returns the URL source type.
func (URLSource) Type() SourceType {
	return SourceTypeURL
}

// HuggingFaceSource represents a single file in a Hugging Face repository.
type HuggingFaceSource struct {
	Repo     string `json:"repo"                yaml:"repo"`
	Filename string `json:"filename"            yaml:"filename"`
	Revision string `json:"revision,omitempty"  yaml:"revision,omitempty"`
	RepoType string `json:"repo_type,omitempty" yaml:"repo_type,omitempty"`
	Token    string `json:"token,omitempty"     yaml:"token,omitempty"`
}

// Type returns the Hugging Face source type.
func (HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// S3Source represents an object in an S3-compatible bucket.
type S3Source struct {
	Bucket          string `json:"bucket"                      yaml:"bucket"`
	Key             string `json:"key"                         yaml:"key"`
	Region          string `json:"region,omitempty"            yaml:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"          yaml:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"     yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `json:"use_path_style,omitempty"    yaml:"use_path_style,omitempty"`
}

// Type returns the S3 source type.
func (S3Source) Type() SourceType {
	return SourceTypeS3
}

// ErrNoSource is returned when an artifact declares no source.
var ErrNoSource = errors.New("no source configured for artifact")

// GetSource returns the active source for the artifact.
func (a *ArtifactConfig) GetSource() (ArtifactSource, error) {
	switch {
	case a.Source.URL != nil:
		return *a.Source.URL, nil
	case a.Source.HuggingFace != nil:
		return *a.Source.HuggingFace, nil
	case a.Source.S3 != nil:
		return *a.Source.S3, nil
	}

	return nil, ErrNoSource
}

// SetHuggingFaceSource sets the Hugging Face source, clearing the others.
func (a *ArtifactConfig) SetHuggingFaceSource(source HuggingFaceSource) {
	a.Source = SourceConfig{HuggingFace: &source}
}

// SetURLSource sets the URL source, clearing the others.
func (a *ArtifactConfig) SetURLSource(href string) {
	a.Source = SourceConfig{URL: &URLSource{Href: href}}
}
