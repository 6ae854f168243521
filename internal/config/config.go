// Copyright 2026 Chris Edwards
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads server configuration from an optional YAML
// file and RACECREW_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the whole server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Fetcher FetcherConfig `mapstructure:"fetcher"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig holds the database settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LLMConfig holds extraction model settings. APIKey is only read from
// the environment, never from the config file.
type LLMConfig struct {
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"-"`
}

// FetcherConfig holds outbound HTTP settings.
type FetcherConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	MaxBodySize    int    `mapstructure:"max_body_size"`
	TimeoutSecs    int    `mapstructure:"timeout_secs"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	DiscoveryJobs  int    `mapstructure:"discovery_jobs"`
	PerDomainDelay int    `mapstructure:"per_domain_delay_ms"`
}

// Load reads the config file (when present) and applies environment
// overrides. A missing config file is fine; defaults cover everything
// except the API key.
func Load() (*Config, error) {
	// .env values feed the environment lookups below. The file is
	// optional.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("RACECREW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("store.path", "data/racecrew.db")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("fetcher.user_agent", "RaceCrewNetwork/1.0")
	v.SetDefault("fetcher.max_body_size", 5*1024*1024)
	v.SetDefault("fetcher.timeout_secs", 15)
	v.SetDefault("fetcher.respect_robots", true)
	v.SetDefault("fetcher.discovery_jobs", 3)
	v.SetDefault("fetcher.per_domain_delay_ms", 0)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// The API key is under its conventional name, not the prefix.
	cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	return &cfg, nil
}
