package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/warriorguo/flowcanvas/relay"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("load .env failed: %v", err)
	}
	if level, err := log.ParseLevel(os.Getenv("RELAY_LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	cfg := relay.NewServerConfig()
	if addr := os.Getenv("RELAY_ADDR"); addr != "" {
		cfg.Addr = addr
	} else if port := cast.ToInt(os.Getenv("PORT")); port > 0 {
		cfg.Addr = ":" + cast.ToString(port)
	}
	cfg.APIKey = firstNonEmpty(os.Getenv("DEEPSEEK_API_KEY"), os.Getenv("OPENAI_API_KEY"))
	if baseURL := os.Getenv("RELAY_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model := os.Getenv("RELAY_CHAT_MODEL"); model != "" {
		cfg.ChatModel = model
	}
	if model := os.Getenv("RELAY_VISION_MODEL"); model != "" {
		cfg.VisionModel = model
	}
	if model := os.Getenv("RELAY_IMAGE_MODEL"); model != "" {
		cfg.ImageModel = model
	}
	cfg.ModelAliases = parseAliases(os.Getenv("RELAY_MODEL_ALIASES"))
	if failures := cast.ToInt(os.Getenv("RELAY_BREAKER_FAILURES")); failures > 0 {
		cfg.BreakerFailures = failures
	}
	if timeout := cast.ToDuration(os.Getenv("RELAY_BREAKER_TIMEOUT")); timeout > 0 {
		cfg.BreakerTimeout = timeout
	}

	if cfg.APIKey == "" {
		log.Warn("no provider API key configured, callers must send X-Api-Key")
	}
	if err := relay.NewServer(cfg).ListenAndServe(); err != nil {
		log.Fatalf("relay stopped: %v", err)
	}
}

// parseAliases reads "label=model,label=model".
func parseAliases(s string) map[string]string {
	aliases := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		label, model, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || label == "" || model == "" {
			continue
		}
		aliases[label] = model
	}
	return aliases
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
