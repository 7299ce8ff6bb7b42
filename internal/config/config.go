package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	LogLevel  string
	LogPretty bool
	OpenAI    OpenAIConfig
	Rooms     RoomConfig
	Game      GameConfig
	WS        WSConfig
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

type RoomConfig struct {
	MaxAge        time.Duration
	SweepInterval time.Duration
}

type GameConfig struct {
	VotingTime      time.Duration
	ResultDelay     time.Duration
	VoteSettleDelay time.Duration
	TimeLimit       time.Duration
	MaxRounds       int
}

type WSConfig struct {
	Rate  float64
	Burst int
}

// Load reads configuration from the environment, after merging a .env file
// from the working directory when one exists. Variables already set win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var p parser
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: p.boolean("LOG_PRETTY", true),
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
			Timeout: p.duration("SCORING_TIMEOUT", 10*time.Second),
		},
		Rooms: RoomConfig{
			MaxAge:        p.duration("ROOM_MAX_AGE", 30*time.Minute),
			SweepInterval: p.duration("SWEEP_INTERVAL", 5*time.Minute),
		},
		Game: GameConfig{
			VotingTime:      p.duration("VOTING_TIME", 30*time.Second),
			ResultDelay:     p.duration("RESULT_DELAY", 8*time.Second),
			VoteSettleDelay: p.duration("VOTE_SETTLE_DELAY", time.Second),
			TimeLimit:       p.duration("GAME_TIME_LIMIT", 5*time.Minute),
			MaxRounds:       p.integer("MAX_ROUNDS", 3),
		},
		WS: WSConfig{
			Rate:  p.decimal("WS_RATE", 5),
			Burst: p.integer("WS_BURST", 10),
		},
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	positive := map[string]time.Duration{
		"SCORING_TIMEOUT": c.OpenAI.Timeout,
		"ROOM_MAX_AGE":    c.Rooms.MaxAge,
		"SWEEP_INTERVAL":  c.Rooms.SweepInterval,
		"VOTING_TIME":     c.Game.VotingTime,
		"GAME_TIME_LIMIT": c.Game.TimeLimit,
	}
	for key, d := range positive {
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", key)
		}
	}
	if c.Game.ResultDelay < 0 || c.Game.VoteSettleDelay < 0 {
		return fmt.Errorf("invalid RESULT_DELAY or VOTE_SETTLE_DELAY: must not be negative")
	}
	if c.Game.MaxRounds < 1 || c.Game.MaxRounds > 10 {
		return fmt.Errorf("invalid MAX_ROUNDS: must be between 1 and 10")
	}
	if c.WS.Rate <= 0 || c.WS.Burst < 1 {
		return fmt.Errorf("invalid WS_RATE or WS_BURST: must be positive")
	}
	return nil
}

// parser keeps the first conversion error so Load can read every variable
// in one pass.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) decimal(key string, def float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
