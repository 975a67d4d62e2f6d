package envvar

const (
	// ModmaEnv is the environment variable used to determine the environment.
	ModmaEnv = "MODMA_ENV"

	// ModmaLogLevel is the environment variable used to determine the log level.
	ModmaLogLevel = "MODMA_LOG_LEVEL"

	// ModmaConfig is the environment variable used to locate the config file.
	ModmaConfig = "MODMA_CONFIG"

	// ModmaServerHTTPPort is the environment variable used to determine the HTTP port.
	ModmaServerHTTPPort = "MODMA_HTTP_PORT"

	// ModmaServerGRPCPort is the environment variable used to determine the gRPC port.
	ModmaServerGRPCPort = "MODMA_GRPC_PORT"

	// ModelDir overrides the directory trained artifacts are stored in.
	ModelDir = "MODEL_DIR"

	// UploadDir overrides the directory uploaded recordings are saved to.
	UploadDir = "UPLOAD_DIR"

	// PreprocessOutputDir overrides the directory epoch archives are written to.
	PreprocessOutputDir = "PREPROCESS_OUTPUT_DIR"

	// FrontendDir overrides the directory the static frontend is served from.
	FrontendDir = "FRONTEND_DIR"

	// OTELEndpoint is the OTLP HTTP collector endpoint. Empty disables telemetry.
	OTELEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)
