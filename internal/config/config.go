package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	JWT struct {
		Secret     string `yaml:"secret"`
		TTLMinutes int    `yaml:"ttl_minutes"`
	} `yaml:"jwt"`

	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`

	Relay struct {
		ViewerIdleMinutes   int `yaml:"viewer_idle_minutes"`
		AgentIdleMinutes    int `yaml:"agent_idle_minutes"`
		ReapIntervalMinutes int `yaml:"reap_interval_minutes"`
	} `yaml:"relay"`
}

// Load reads config.yaml from the working directory. A missing file is
// fine (everything has a sane default); a broken one is not.
func Load() *Config {
	var c Config

	data, err := os.ReadFile("config.yaml")
	if err == nil {
		if err := yaml.Unmarshal(data, &c); err != nil {
			panic(err)
		}
	} else if !os.IsNotExist(err) {
		panic(err)
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8520"
	}
	return &c
}

func (c *Config) ViewerIdleTimeout() time.Duration {
	return time.Duration(c.Relay.ViewerIdleMinutes) * time.Minute
}

func (c *Config) AgentIdleTimeout() time.Duration {
	return time.Duration(c.Relay.AgentIdleMinutes) * time.Minute
}

func (c *Config) ReapInterval() time.Duration {
	return time.Duration(c.Relay.ReapIntervalMinutes) * time.Minute
}
