package internal

import "time"

// Config defines the environment variables shared by the client binaries.
type Config struct {
	ServerURL         string        `env:"CHAT_SERVER_URL,default=ws://localhost:8080"`
	HistoryURL        string        `env:"CHAT_HISTORY_URL,default=http://localhost:8080"`
	ConversationID    string        `env:"CHAT_CONVERSATION_ID,required=true"`
	ParticipantID     string        `env:"CHAT_PARTICIPANT_ID"`
	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthIssuer        string        `env:"AUTH_ISSUER,default=staychat"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	MaxRetries      int           `env:"MAX_RETRIES,default=5"`
	BaseRetryDelay  time.Duration `env:"BASE_RETRY_DELAY,default=500ms"`
	MaxRetryDelay   time.Duration `env:"MAX_RETRY_DELAY,default=30s"`
	EventBufferSize int           `env:"EVENT_BUFFER_SIZE,default=64"`
	SinkTimeout     time.Duration `env:"SINK_TIMEOUT,default=5s"`
	DialTimeout     time.Duration `env:"DIAL_TIMEOUT,default=10s"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
}
