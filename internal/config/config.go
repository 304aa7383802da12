package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is intentionally small and JSON-friendly.
// If Users is empty, vfsgate runs without auth.
type Config struct {
	// Root is the directory exposed under /admin/vfs and /admin/zip.
	// Default: $HOME, else "/".
	Root string `json:"root"`

	// StateDir holds spooled zip uploads. It is hidden from the VFS when it
	// lies under Root.
	// Default: <root>/.vfsgate
	StateDir string `json:"stateDir"`

	// Addr is the API listen address.
	Addr string `json:"addr,omitempty"`

	// MetricsAddr is the Prometheus listen address. Empty disables it.
	MetricsAddr string `json:"metricsAddr,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"logLevel,omitempty"`
	// LogFormat is json or console.
	LogFormat string `json:"logFormat,omitempty"`

	// SpecialFolders maps virtual top-level folder names to absolute
	// directories outside Root, e.g. "SystemDrive": "C:\\".
	SpecialFolders map[string]string `json:"specialFolders,omitempty"`

	// WebDAV mounts a WebDAV view of Root at /admin/dav/.
	WebDAV bool `json:"webdav,omitempty"`

	// MaxUploadBytes bounds a zip upload. Zero means unbounded.
	MaxUploadBytes int64 `json:"maxUploadBytes,omitempty"`

	// AuthOptional enables "public + authenticated" mode when Users is set:
	// - requests without Authorization are treated as anonymous
	// - requests with Authorization are validated; invalid creds get 401
	// Pair this with ACLs, e.g. read:["*"] and write:["alice"].
	AuthOptional bool `json:"authOptional,omitempty"`

	// Users is a map of username -> bcrypt hash.
	// Example:
	// "alice": {"bcrypt":"$2a$10$..."}
	Users map[string]User `json:"users,omitempty"`

	// Tokens maps bearer tokens to usernames.
	// Request header: Authorization: Bearer <token>
	// The token authenticates as the mapped username (ACLs still apply).
	Tokens map[string]string `json:"tokens,omitempty"`

	// ACLs is a simple first-match rule list by path prefix.
	// If empty:
	// - no-auth mode: allow read+write
	// - auth mode: allow read to all authenticated users, deny write
	ACLs []ACL `json:"acls,omitempty"`
}

type User struct {
	Bcrypt string `json:"bcrypt"`
}

type ACL struct {
	// Path is a prefix match, always interpreted as a clean VFS path like "/site".
	Path string `json:"path"`
	// Read allows listing/downloading.
	Read []string `json:"read,omitempty"` // usernames or "*"
	// Write allows uploads, directory creation, extraction and deletes.
	Write []string `json:"write,omitempty"` // usernames
}

// DefaultAddr is the API listen address used when none is configured.
const DefaultAddr = "0.0.0.0:8080"

// EnvPrefix prefixes the environment overrides, e.g. VFSGATE_ROOT.
const EnvPrefix = "VFSGATE_"

// Load reads a JSON config file.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from VFSGATE_* environment variables read through
// lookup (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("ROOT", &c.Root)
	str("STATE_DIR", &c.StateDir)
	str("ADDR", &c.Addr)
	str("METRICS_ADDR", &c.MetricsAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	if v, ok := lookup(EnvPrefix + "WEBDAV"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sWEBDAV: %w", EnvPrefix, err)
		}
		c.WebDAV = b
	}
	if v, ok := lookup(EnvPrefix + "MAX_UPLOAD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_BYTES: %w", EnvPrefix, err)
		}
		c.MaxUploadBytes = n
	}
	return nil
}

// ApplyDefaults fills unset fields. home is the user's home directory, or ""
// when unknown.
func (c *Config) ApplyDefaults(home string) error {
	if strings.TrimSpace(c.Root) == "" {
		c.Root = home
	}
	if strings.TrimSpace(c.Root) == "" {
		c.Root = string(filepath.Separator)
	}
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("abs root: %w", err)
	}
	c.Root = abs
	if c.StateDir == "" {
		c.StateDir = filepath.Join(c.Root, ".vfsgate")
	}
	if c.StateDir, err = filepath.Abs(c.StateDir); err != nil {
		return fmt.Errorf("abs state dir: %w", err)
	}
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	return nil
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.Root == "" {
		errs = append(errs, errors.New("root is required"))
	} else if !filepath.IsAbs(c.Root) {
		errs = append(errs, fmt.Errorf("root %q is not absolute", c.Root))
	}
	for name, dir := range c.SpecialFolders {
		if name == "" || strings.ContainsAny(name, `/\`) {
			errs = append(errs, fmt.Errorf("special folder name %q is invalid", name))
		}
		if !filepath.IsAbs(dir) {
			errs = append(errs, fmt.Errorf("special folder %s: %q is not absolute", name, dir))
		}
	}
	for token, user := range c.Tokens {
		if strings.TrimSpace(token) == "" {
			errs = append(errs, errors.New("empty bearer token"))
		}
		if _, ok := c.Users[user]; !ok {
			errs = append(errs, fmt.Errorf("token user %q is not configured", user))
		}
	}
	if c.MaxUploadBytes < 0 {
		errs = append(errs, errors.New("maxUploadBytes must not be negative"))
	}
	return errors.Join(errs...)
}
