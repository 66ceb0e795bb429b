package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Service information
	Service struct {
		Name        string `yaml:"name"`
		Version     string `yaml:"version"`
		Environment string `yaml:"environment"`
	} `yaml:"service"`

	HTTP      HTTPConfig      `yaml:"http"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Call      CallConfig      `yaml:"call"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
	Chat      ChatConfig      `yaml:"chat"`
}

// HTTPConfig represents HTTP server configuration
type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// WebSocketConfig represents the WebSocket endpoint configuration
type WebSocketConfig struct {
	Path string `yaml:"path"`
}

// CallConfig represents call matching configuration
type CallConfig struct {
	RingTimeout time.Duration `yaml:"ring_timeout"`
}

// WebRTCConfig represents WebRTC configuration shared with participants
type WebRTCConfig struct {
	ICEServers []string `yaml:"ice_servers"`
}

// ChatConfig represents the chat-history collaborator configuration
type ChatConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load loads the configuration from a file
func Load(path string) (*Config, error) {
	// Set default configuration
	config := &Config{
		HTTP: HTTPConfig{
			Address:         ":8086",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Path: "/ws",
		},
		Call: CallConfig{
			RingTimeout: 30 * time.Second,
		},
		WebRTC: WebRTCConfig{
			ICEServers: []string{"stun:stun.l.google.com:19302"},
		},
		Chat: ChatConfig{
			Timeout: 10 * time.Second,
		},
	}
	config.Service.Name = "livetalk-relay"

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment overrides
	applyEnvironmentOverrides(config)

	return config, nil
}

// applyEnvironmentOverrides applies environment overrides
func applyEnvironmentOverrides(config *Config) {
	// HTTP address
	if addr := os.Getenv("HTTP_ADDRESS"); addr != "" {
		config.HTTP.Address = addr
	}

	// WebSocket path
	if path := os.Getenv("WS_PATH"); path != "" {
		config.WebSocket.Path = path
	}

	// Chat service base URL
	if url := os.Getenv("CHAT_BASE_URL"); url != "" {
		config.Chat.BaseURL = url
	}

	// Environment
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		config.Service.Environment = env
	}
}
