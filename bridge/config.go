package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/guseggert/httpexec/bridge/process"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeout             = 30 * time.Second
	DefaultMaxRequestBytes     = 10 << 20
	DefaultResponseContentType = "application/json"
)

// Config configures a Server. It is read-only once the Server is constructed.
type Config struct {
	// AppCommand is the command line run for every request. Required.
	AppCommand string `yaml:"appCommand"`

	// Host is the interface to listen on. Empty means all interfaces.
	Host string `yaml:"host"`
	// Port is the TCP port to listen on. Zero means an ephemeral port chosen by the OS.
	Port int `yaml:"port"`

	Shell string   `yaml:"shell"`
	Dir   string   `yaml:"dir"`
	Env   []string `yaml:"env"`

	// Timeout bounds how long a single command may run. Zero means DefaultTimeout, negative disables the timeout.
	Timeout time.Duration `yaml:"timeout"`
	// MaxRequestBytes bounds the request body size. Zero means DefaultMaxRequestBytes, negative disables the limit.
	MaxRequestBytes int64 `yaml:"maxRequestBytes"`
	// WaitDelay bounds how long a request waits for the command's output to be closed after the command exits,
	// covering background jobs that inherited stdout or stderr. Zero means process.DefaultWaitDelay.
	WaitDelay time.Duration `yaml:"waitDelay"`

	ResponseContentType string `yaml:"responseContentType"`
}

// LoadConfig reads a YAML config file. Unknown fields are rejected.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	err = dec.Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.AppCommand == "" {
		return errors.New("appCommand is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.WaitDelay < 0 {
		return fmt.Errorf("waitDelay %s must not be negative", c.WaitDelay)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Shell == "" {
		c.Shell = process.DefaultShell
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.WaitDelay == 0 {
		c.WaitDelay = process.DefaultWaitDelay
	}
	if c.MaxRequestBytes == 0 {
		c.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if c.ResponseContentType == "" {
		c.ResponseContentType = DefaultResponseContentType
	}
	return c
}
