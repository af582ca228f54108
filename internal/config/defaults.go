package config

const (
	defaultDataDir              = "~/.local/share/folio"
	defaultLogDir               = "~/.local/share/folio/logs"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultConcurrency          = 5
	defaultMaxStageAttempts     = 3
	defaultProgressPollInterval = 500
	defaultCiteLinkTimeout      = 30
	defaultContentFetchTimeout  = 60
	defaultExtractBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultExtractModel         = "google/gemini-3-flash-preview"
	defaultExtractTimeout       = 45
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Workflow: Workflow{
			Concurrency:          defaultConcurrency,
			MaxStageAttempts:     defaultMaxStageAttempts,
			ProgressPollInterval: defaultProgressPollInterval,
		},
		CiteLink: CiteLink{
			TimeoutSeconds: defaultCiteLinkTimeout,
		},
		ContentFetch: ContentFetch{
			TimeoutSeconds: defaultContentFetchTimeout,
		},
		Extract: Extract{
			BaseURL:        defaultExtractBaseURL,
			Model:          defaultExtractModel,
			TimeoutSeconds: defaultExtractTimeout,
		},
	}
}
