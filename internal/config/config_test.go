package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		BaseURL:      "http://localhost:3000",
		StepTimeout:  30 * time.Second,
		PollInterval: 500 * time.Millisecond,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"https", func(c *Config) { c.BaseURL = "https://app.example.com" }, false},
		{"empty base URL", func(c *Config) { c.BaseURL = "" }, true},
		{"no scheme", func(c *Config) { c.BaseURL = "localhost:3000" }, true},
		{"bad scheme", func(c *Config) { c.BaseURL = "ftp://example.com" }, true},
		{"zero timeout", func(c *Config) { c.StepTimeout = 0 }, true},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"derived from http", Config{BaseURL: "http://localhost:3000"}, "ws://localhost:3000/ws"},
		{"derived from https", Config{BaseURL: "https://app.example.com/"}, "wss://app.example.com/ws"},
		{"explicit", Config{BaseURL: "http://x", WSURL: "ws://other:8080/socket"}, "ws://other:8080/socket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.SocketURL(); got != tt.want {
				t.Errorf("SocketURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
