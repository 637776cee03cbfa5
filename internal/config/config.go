package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quiz-match-service/internal/app"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Match struct {
		MaxPlayers       int    `yaml:"max_players"`
		MinPlayers       int    `yaml:"min_players"`
		QuestionDuration string `yaml:"question_duration"`
		Countdown        string `yaml:"countdown"`
		Intermission     string `yaml:"intermission"`
		WaitingTimeout   string `yaml:"waiting_timeout"`
		ReconnectGrace   string `yaml:"reconnect_grace"`
		Retention        string `yaml:"retention"`
	} `yaml:"match"`
	Rating struct {
		Scope string `yaml:"scope"`
	} `yaml:"rating"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	RabbitMQ struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"rabbitmq"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// MatchSettings builds room settings from the match and rating sections, falling back to the defaults.
func (c Config) MatchSettings() app.Settings {
	def := app.DefaultSettings()
	s := app.Settings{
		MaxPlayers:       c.Match.MaxPlayers,
		MinPlayers:       c.Match.MinPlayers,
		QuestionDuration: TTLDuration(c.Match.QuestionDuration, def.QuestionDuration),
		Countdown:        TTLDuration(c.Match.Countdown, def.Countdown),
		Intermission:     TTLDuration(c.Match.Intermission, def.Intermission),
		WaitingTimeout:   TTLDuration(c.Match.WaitingTimeout, def.WaitingTimeout),
		ReconnectGrace:   TTLDuration(c.Match.ReconnectGrace, def.ReconnectGrace),
		Retention:        TTLDuration(c.Match.Retention, def.Retention),
		RatingScope:      c.Rating.Scope,
	}
	return s.Merge(def)
}
