// Package config loads the client and server settings from the
// environment. A .env file in the working directory is read first when
// present; command-line flags registered by RegisterFlags override both.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// Client holds the settings of the terminal chat client. Defaults live in
// the env tags only.
type Client struct {
	ServerURL  string        `env:"CHAT_SERVER_URL,default=http://31.97.202.251:8888" validate:"required,url"`
	Namespace  string        `env:"CHAT_NAMESPACE,default=/" validate:"required,startswith=/"`
	Channel    string        `env:"CHAT_CHANNEL,default=message" validate:"required"`
	ReplyDelay time.Duration `env:"CHAT_REPLY_DELAY,default=500ms" validate:"min=0"`
	LogLevel   string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// Server holds the settings of the development bot server.
type Server struct {
	ListenAddr   string        `env:"CHAT_LISTEN_ADDR,default=:8888" validate:"required"`
	PingInterval time.Duration `env:"CHAT_PING_INTERVAL,default=25s" validate:"gt=0"`
	PingTimeout  time.Duration `env:"CHAT_PING_TIMEOUT,default=20s" validate:"gt=0"`
	LogLevel     string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// LoadClient reads the client settings from the environment.
func LoadClient() (Client, error) {
	var c Client
	if err := load(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// LoadServer reads the server settings from the environment.
func LoadServer() (Server, error) {
	var s Server
	if err := load(&s); err != nil {
		return s, err
	}
	return s, s.Validate()
}

func load(v any) error {
	_ = godotenv.Load()
	if _, err := env.UnmarshalFromEnviron(v); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// RegisterFlags binds command-line flags to c, using its current values as
// defaults.
func (c *Client) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ServerURL, "server", c.ServerURL, "Chat server URL (e.g., http://localhost:8888)")
	fs.StringVar(&c.Namespace, "namespace", c.Namespace, "Socket.IO namespace")
	fs.StringVar(&c.Channel, "channel", c.Channel, "Event carrying chat messages")
	fs.DurationVar(&c.ReplyDelay, "delay", c.ReplyDelay, "Delay before showing a reply (0 disables it)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (DEBUG, INFO, WARN, ERROR)")
}

// Validate checks c after the environment and flags were applied.
func (c *Client) Validate() error {
	c.LogLevel = strings.ToUpper(c.LogLevel)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}
	return nil
}

// RegisterFlags binds command-line flags to s, using its current values as
// defaults.
func (s *Server) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&s.ListenAddr, "addr", s.ListenAddr, "Address to listen on")
	fs.DurationVar(&s.PingInterval, "ping-interval", s.PingInterval, "Heartbeat interval")
	fs.DurationVar(&s.PingTimeout, "ping-timeout", s.PingTimeout, "Heartbeat timeout")
	fs.StringVar(&s.LogLevel, "log-level", s.LogLevel, "Log level (DEBUG, INFO, WARN, ERROR)")
}

func (s *Server) Validate() error {
	s.LogLevel = strings.ToUpper(s.LogLevel)
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	return nil
}
