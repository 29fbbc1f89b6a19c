package config

const (
	defaultConfigPath             = "~/.config/dripfeed/config.toml"
	defaultDataDir                = "~/.local/share/dripfeed"
	defaultLogDir                 = "~/.local/share/dripfeed/logs"
	defaultCatalogPath            = "~/.config/dripfeed/apps.json"
	defaultAPIBind                = "127.0.0.1:7488"
	defaultExecutorMethod         = "POST"
	defaultExecutorTimeout        = 30
	defaultExecutorUserAgent      = "dripfeed/dev"
	defaultPollIntervalSeconds    = 300
	defaultMaxConcurrency         = 4
	defaultClaimGraceSeconds      = 60
	defaultCompletedRetentionDays = 30
	defaultNotifyRequestTimeout   = 10
	defaultNotifyMaxPerMinute     = 30
	defaultNotifyBuffer           = 64
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Catalog: Catalog{
			Path: defaultCatalogPath,
		},
		Executor: Executor{
			Method:         defaultExecutorMethod,
			TimeoutSeconds: defaultExecutorTimeout,
			UserAgent:      defaultExecutorUserAgent,
		},
		Workflow: Workflow{
			PollIntervalSeconds:    defaultPollIntervalSeconds,
			MaxConcurrency:         defaultMaxConcurrency,
			ClaimGraceSeconds:      defaultClaimGraceSeconds,
			CompletedRetentionDays: defaultCompletedRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			StepExecuted:   true,
			JobCompleted:   true,
			StepFailed:     true,
			StorageErrors:  true,
			MaxPerMinute:   defaultNotifyMaxPerMinute,
			Buffer:         defaultNotifyBuffer,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
