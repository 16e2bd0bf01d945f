package main

import (
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/common/environment"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/app"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/history"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/llm"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/matrix"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/ratelimit"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/tagparse"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/workflow"
)

const defaultTimezone = "Europe/Rome"

// loadConfig reads the configuration from environment variables. Flags
// applied by the caller take precedence.
func loadConfig() *app.Config {
	fallback, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		fallback = time.UTC
	}
	return &app.Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", "./livebot.db"),
		HTTPAddr:     environment.StringOr("LIVEBOT_HTTP_ADDR", ""),
		Matrix: matrix.Config{
			Homeserver:  environment.StringOr("MATRIX_HOMESERVER", ""),
			UserID:      environment.StringOr("MATRIX_USER_ID", ""),
			AccessToken: environment.StringOr("MATRIX_ACCESS_TOKEN", ""),
			Rooms:       environment.StringSliceOr("MATRIX_ROOMS", nil),
		},
		Provider: app.ProviderConfig{
			Name: environment.StringOr("LIVEBOT_PROVIDER", app.ProviderGemini),
			Gemini: llm.Config{
				APIKey: environment.StringOr("GEMINI_API_KEY", ""),
				Model:  environment.StringOr("GEMINI_MODEL", "gemini-2.5-flash"),
			},
			OpenRouter: llm.Config{
				APIKey:  environment.StringOr("OPENROUTER_API_KEY", ""),
				Model:   environment.StringOr("OPENROUTER_MODEL", ""),
				BaseURL: environment.StringOr("OPENROUTER_BASE_URL", ""),
				Title:   "livebot",
			},
			Timeout: environment.DurationOr("LIVEBOT_PROVIDER_TIMEOUT", 30*time.Second),
			Retry:   llm.DefaultRetryPolicy,
		},
		CatalogPath:   environment.StringOr("LIVEBOT_CATALOG", ""),
		TagKeyword:    environment.StringOr("LIVEBOT_TAG_KEYWORD", tagparse.DefaultKeyword),
		DomainTimeout: environment.DurationOr("LIVEBOT_DOMAIN_TIMEOUT", 20*time.Second),
		MinInterval:   environment.DurationOr("LIVEBOT_MIN_INTERVAL", ratelimit.DefaultInterval),
		MaxDepth:      environment.IntOr("LIVEBOT_MAX_DEPTH", workflow.DefaultMaxDepth),
		HistoryLimit:  environment.IntOr("LIVEBOT_HISTORY_LIMIT", history.DefaultLimit),
		HistoryMaxAge: environment.DurationOr("LIVEBOT_HISTORY_MAX_AGE", history.DefaultMaxAge),
		Location:      environment.LocationOr("LIVEBOT_TIMEZONE", fallback),
		StartupNotice: environment.StringOr("LIVEBOT_STARTUP_NOTICE", ""),
	}
}
