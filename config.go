// config.go
// ----------
// This file defines RoleConfig and GatewayConfig, which describe how the gateway maps
// request paths to roles, where each role refreshes its session and where the user is
// sent after an unrecoverable authentication failure.
//
// Configuration is assembled from DefaultGatewayConfig, an optional YAML file and
// SESSIONBRIDGE_* environment overrides, then checked with Validate.
package sessionbridge

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConcurrentRefreshPolicy decides what happens to a 401 that arrives while a
// refresh is already in flight.
type ConcurrentRefreshPolicy string

const (
	// RefreshQueue parks the request behind the in-flight refresh and replays it
	// once the refresh resolves.
	RefreshQueue ConcurrentRefreshPolicy = "queue"
	// RefreshDrop does not retry the request; it fails with ErrRefreshInFlight.
	RefreshDrop ConcurrentRefreshPolicy = "drop"
)

const (
	DefaultRefreshTimeout       = 30 * time.Second
	DefaultSessionExpiredNotice = "Your session has expired, please log in again."
	DefaultAccessDeniedNotice   = "Access denied, please log in again."
)

// RoleConfig describes one user category with an independent session.
type RoleConfig struct {
	Name            string `yaml:"name"`
	PathPrefix      string `yaml:"pathPrefix"`      // first path segment, e.g. "_cl"
	RefreshEndpoint string `yaml:"refreshEndpoint"` // e.g. "/client/refresh-token"
	RefreshMethod   string `yaml:"refreshMethod"`   // defaults to POST
	LoginRedirect   string `yaml:"loginRedirect"`
}

// GatewayConfig holds the role tables and failure-handling policy of a Gateway.
type GatewayConfig struct {
	Roles       []RoleConfig `yaml:"roles"`
	DefaultRole string       `yaml:"defaultRole"` // used when no prefix matches; empty disables

	// BlocklistMessages are matched case-insensitively as substrings of a 403 message.
	BlocklistMessages []string `yaml:"blocklistMessages"`

	ConcurrentRefresh    ConcurrentRefreshPolicy `yaml:"concurrentRefresh"`
	SessionExpiredNotice string                  `yaml:"sessionExpiredNotice"`
	AccessDeniedNotice   string                  `yaml:"accessDeniedNotice"`
	RefreshTimeout       Duration                `yaml:"refreshTimeout"`

	LogLevel string `yaml:"logLevel"`
}

// Duration is a time.Duration read from YAML as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// DefaultGatewayConfig returns the client/vendor/admin role table.
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		Roles: []RoleConfig{
			{Name: "client", PathPrefix: "_cl", RefreshEndpoint: "/client/refresh-token", LoginRedirect: "/"},
			{Name: "vendor", PathPrefix: "_vd", RefreshEndpoint: "/vendor/refresh-token", LoginRedirect: "/vendor"},
			{Name: "admin", PathPrefix: "_ad", RefreshEndpoint: "/admin/refresh-token", LoginRedirect: "/admin"},
		},
		BlocklistMessages: []string{
			"Your account has been blocked",
			"Token is blacklisted",
		},
		ConcurrentRefresh:    RefreshQueue,
		SessionExpiredNotice: DefaultSessionExpiredNotice,
		AccessDeniedNotice:   DefaultAccessDeniedNotice,
		RefreshTimeout:       Duration{DefaultRefreshTimeout},
		LogLevel:             "info",
	}
}

// LoadConfig loads configuration from a YAML file and environment overrides.
// An empty path yields the defaults plus overrides.
func LoadConfig(path string) (*GatewayConfig, error) {
	cfg := DefaultGatewayConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	if policy := os.Getenv("SESSIONBRIDGE_CONCURRENT_REFRESH"); policy != "" {
		cfg.ConcurrentRefresh = ConcurrentRefreshPolicy(strings.ToLower(policy))
	}
	if timeout := os.Getenv("SESSIONBRIDGE_REFRESH_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, errors.Wrap(err, "parse SESSIONBRIDGE_REFRESH_TIMEOUT")
		}
		cfg.RefreshTimeout = Duration{d}
	}
	if level := os.Getenv("SESSIONBRIDGE_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills in per-role defaults and rejects inconsistent tables.
func (c *GatewayConfig) Validate() error {
	if len(c.Roles) == 0 {
		return errors.New("at least one role is required")
	}

	names := make(map[string]bool, len(c.Roles))
	prefixes := make(map[string]string, len(c.Roles))
	for i := range c.Roles {
		role := &c.Roles[i]
		role.PathPrefix = strings.Trim(role.PathPrefix, "/")
		if role.Name == "" {
			return fmt.Errorf("role %d: name is required", i)
		}
		if names[role.Name] {
			return fmt.Errorf("role %q: duplicate name", role.Name)
		}
		names[role.Name] = true
		if role.PathPrefix == "" {
			return fmt.Errorf("role %q: pathPrefix is required", role.Name)
		}
		if other, ok := prefixes[role.PathPrefix]; ok {
			return fmt.Errorf("role %q: pathPrefix %q already used by role %q", role.Name, role.PathPrefix, other)
		}
		prefixes[role.PathPrefix] = role.Name
		if role.RefreshEndpoint == "" {
			return fmt.Errorf("role %q: refreshEndpoint is required", role.Name)
		}
		if role.RefreshMethod == "" {
			role.RefreshMethod = "POST"
		}
		role.RefreshMethod = strings.ToUpper(role.RefreshMethod)
		if role.LoginRedirect == "" {
			role.LoginRedirect = "/"
		}
	}

	if c.DefaultRole != "" && !names[c.DefaultRole] {
		return fmt.Errorf("defaultRole %q is not a configured role", c.DefaultRole)
	}

	switch c.ConcurrentRefresh {
	case "":
		c.ConcurrentRefresh = RefreshQueue
	case RefreshQueue, RefreshDrop:
	default:
		return fmt.Errorf("concurrentRefresh must be %q or %q, got %q", RefreshQueue, RefreshDrop, c.ConcurrentRefresh)
	}

	if c.RefreshTimeout.Duration < 0 {
		return fmt.Errorf("refreshTimeout must not be negative")
	}
	if c.RefreshTimeout.Duration == 0 {
		c.RefreshTimeout = Duration{DefaultRefreshTimeout}
	}
	if c.SessionExpiredNotice == "" {
		c.SessionExpiredNotice = DefaultSessionExpiredNotice
	}
	if c.AccessDeniedNotice == "" {
		c.AccessDeniedNotice = DefaultAccessDeniedNotice
	}
	return nil
}
