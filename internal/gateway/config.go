package gateway

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"sort"
	"time"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string                      `yaml:"bind"`
	Auth            AuthConfig                  `yaml:"auth"`
	Webhooks        map[string]WebhookSourceCfg `yaml:"webhooks"`
	ReadTimeout     time.Duration               `yaml:"read_timeout"`
	WriteTimeout    time.Duration               `yaml:"write_timeout"`
	ShutdownTimeout time.Duration               `yaml:"shutdown_timeout"`
}

const defaultAuthAttemptsPerMinute = 60

// defaults fills zero values.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.Auth.AttemptsPerMinute <= 0 {
		c.Auth.AttemptsPerMinute = defaultAuthAttemptsPerMinute
	}
}

// sourceName is the shape of a webhook source, used verbatim as a URL segment.
var sourceName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// validate reports every problem in c at once.
func (c *Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("gateway: invalid bind address %q", c.Bind))
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		errs = append(errs, errors.New("gateway: auth.basic_user and auth.basic_pass must be set together"))
	}

	sources := make([]string, 0, len(c.Webhooks))
	for s := range c.Webhooks {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		wh := c.Webhooks[s]
		switch {
		case !sourceName.MatchString(s):
			errs = append(errs, fmt.Errorf("gateway: webhook source %q: name must match %s", s, sourceName))
		case wh.Secret == "" && !wh.Unsigned:
			errs = append(errs, fmt.Errorf("gateway: webhook source %q: secret is required unless unsigned is set", s))
		case wh.Secret != "" && wh.Unsigned:
			errs = append(errs, fmt.Errorf("gateway: webhook source %q: secret and unsigned are exclusive", s))
		}
	}
	return errors.Join(errs...)
}

// AuthConfig configures authentication for the API endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`

	// AttemptsPerMinute caps authentication attempts across all clients.
	AttemptsPerMinute int `yaml:"attempts_per_minute"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// WebhookSourceCfg configures one CMS posting content events to
// /webhooks/{source}.
type WebhookSourceCfg struct {
	Secret string `yaml:"secret"`

	// Unsigned accepts events without an HMAC signature. Only for CMSes
	// on a trusted network.
	Unsigned bool `yaml:"unsigned"`
}
