package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Agent:     DefaultAgentConfig(),
		Session:   DefaultSessionConfig(),
		Sentiment: DefaultSentimentConfig(),
		Pipeline:  DefaultPipelineConfig(),
		Redis:     DefaultRedisConfig(),
		Auth:      DefaultAuthConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort: 8080,
		// Media-stream sockets stay open for the length of a call.
		ReadTimeout:     0,
		WriteTimeout:    0,
		ShutdownTimeout: 30 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultAgentConfig returns the default voice-agent configuration.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		URL:         "wss://agent.deepgram.com/v1/agent/converse",
		APIKey:      "",
		EventBuffer: 256,
		Instructions: "You are a warm, patient companion calling an elderly person for a friendly check-in. " +
			"Speak slowly and clearly, ask one question at a time, and follow their lead. " +
			"Use the available functions to look up their interests, log medications they mention, " +
			"and alert a caregiver if anything sounds wrong.",
		Greeting: "Hello! It's so nice to talk with you today. How are you feeling?",
	}
}

// DefaultSessionConfig returns the default per-call cadences.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TopicSummaryEvery:   10,
		SentimentEvery:      5,
		SentimentWindow:     10,
		SentimentHistoryCap: 20,
		SustainedNegative:   3,
		InjectionInterval:   2 * time.Second,
	}
}

// DefaultSentimentConfig returns the default sentiment service config.
func DefaultSentimentConfig() SentimentConfig {
	return SentimentConfig{
		URL:     "",
		Timeout: 10 * time.Second,
	}
}

// DefaultPipelineConfig returns the default cognitive pipeline config.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BaseURL: "http://localhost:9000",
		Timeout: 15 * time.Second,
	}
}

// DefaultRedisConfig returns the default cache configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:    false,
		Addr:       "localhost:6379",
		DB:         0,
		DefaultTTL: 10 * time.Minute,
		MaxRetries: 3,
		PoolSize:   10,
	}
}

// DefaultAuthConfig returns the default admin auth configuration.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:   false,
		JWTSecret: "",
	}
}

// DefaultLogConfig returns the default logger configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "callbridge",
		SampleRate:   0.1,
	}
}
