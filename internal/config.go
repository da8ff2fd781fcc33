package internal

import (
	"fmt"
	"time"
)

// Config is the relay's environment-driven configuration.
type Config struct {
	Port           int    `env:"PORT,default=4000"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	NatsURL        string        `env:"NATS_URL,required=true"`
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT,default=5s"`
	AckWait        time.Duration `env:"ACK_WAIT,default=30s"`
	MaxDeliver     int           `env:"MAX_DELIVER,default=5"`
	ReconnectWait  time.Duration `env:"RECONNECT_WAIT,default=1s"`
	MaxReconnects  int           `env:"MAX_RECONNECTS,default=10"`
	MessageMaxAge  time.Duration `env:"MESSAGE_MAX_AGE,default=24h"`

	MaxContentLength  int    `env:"MAX_CONTENT_LENGTH,default=2000"`
	LimitMessages     *int   `env:"LIMIT_MESSAGES"`
	CensoredWordsPath string `env:"CENSORED_WORDS_PATH"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,default=*"`
}

// CharacterRune validates that the configured replacement is one rune.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
