package flexi

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config holds the connection settings for one Flexi company.
type Config struct {
	// BaseURL is the server root, e.g. https://demo.flexibee.eu:5434
	BaseURL string
	// Company is the company database identifier used in /c/{company}/
	Company string
	// Username and Password are sent as HTTP Basic credentials
	Username string
	Password string
	// Timeout bounds a single HTTP call
	Timeout time.Duration
	// MaxResponseSize caps how many bytes of a response body are read
	MaxResponseSize int64
}

// Defaults
const (
	DefaultTimeout         = 60 * time.Second
	DefaultMaxResponseSize = 64 << 20
)

// Configuration errors
var (
	ErrConfigMissingBaseURL  = errors.New("flexi: base URL is required")
	ErrConfigInvalidBaseURL  = errors.New("flexi: base URL must be an absolute http(s) URL")
	ErrConfigMissingCompany  = errors.New("flexi: company is required")
	ErrConfigMissingUsername = errors.New("flexi: username is required")
	ErrConfigMissingPassword = errors.New("flexi: password is required")
)

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrConfigMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrConfigInvalidBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Company == "" {
		return ErrConfigMissingCompany
	}
	if c.Username == "" {
		return ErrConfigMissingUsername
	}
	if c.Password == "" {
		return ErrConfigMissingPassword
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxResponseSize <= 0 {
		c.MaxResponseSize = DefaultMaxResponseSize
	}
	return nil
}
