package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// CHAT_WS_URL enables the live scenarios; empty skips them.
	WsURL      string `envconfig:"CHAT_WS_URL"`
	HistoryURL string `envconfig:"CHAT_HISTORY_URL"`
	AuthSecret string `envconfig:"CHAT_AUTH_SECRET" default:"dev_secret"`
	AuthIssuer string `envconfig:"CHAT_AUTH_ISSUER" default:"staychat"`
	// CHAT_CONVERSATION_ID scopes the scenario to one test conversation
	Conversation string `envconfig:"CHAT_CONVERSATION_ID" default:"e2e-conversation"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
