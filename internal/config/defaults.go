package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Chain: ChainConfig{
			DebounceMs:         150,
			StepTimeoutSeconds: 10,
		},
		Suggest: SuggestConfig{
			Enabled:        true,
			Source:         "clipboard",
			PollIntervalMs: 3000,
			MinConfidence:  0,
		},
		History: HistoryConfig{
			Enabled:       false,
			DBPath:        "~/.omnitool/history.db",
			RetentionDays: 30,
		},
	}
}
