package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:     "info",
			DefaultTone:  "engaging",
			HashtagCount: 10,
		},
		GetLate: GetLateConfig{
			BaseURL:             "https://getlate.dev/api/v1",
			TimeoutSeconds:      30,
			MaxRetries:          3,
			PostTimeoutSeconds:  120,
			SimulateUnsupported: true,
		},
		Drafting: DraftingConfig{
			APIBase:        "https://generativelanguage.googleapis.com/v1beta",
			Model:          "gemini-2.5-flash",
			TimeoutSeconds: 60,
			ImageDir:       "~/.autosocioly/images",
		},
		Exposure: ExposureConfig{
			TunnelAPIURL: "http://localhost:4040/api/tunnels",
			StaticDir:    "~/.autosocioly/static/uploads",
			PublicBase:   "http://localhost:8000",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8000,
		},
		Notify: NotifyConfig{
			Enabled: false,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
