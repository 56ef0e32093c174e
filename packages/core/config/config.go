package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// CertificateConfig names the client certificate material for one host.
// Cert/Key hold PEM paths, Pfx a PKCS#12 bundle path; Passphrase is passed
// through to the PKCS#12 decoder as-is.
type CertificateConfig struct {
	Cert       string `json:"cert,omitempty" yaml:"cert,omitempty"`
	Key        string `json:"key,omitempty" yaml:"key,omitempty"`
	Pfx        string `json:"pfx,omitempty" yaml:"pfx,omitempty"`
	Passphrase string `json:"passphrase,omitempty" yaml:"passphrase,omitempty"`
}

// Settings is the user-facing configuration for the dispatch pipeline.
// Boolean fields are pointers so a file can distinguish "unset" from
// "explicitly false"; use the Get* accessors for the effective values.
type Settings struct {
	// TimeoutMs is the per-request timeout in milliseconds. Zero or
	// negative means no timeout.
	TimeoutMs int `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`

	FollowRedirect *bool  `json:"followRedirect,omitempty" yaml:"followRedirect,omitempty"`
	Proxy          string `json:"proxy,omitempty" yaml:"proxy,omitempty"`

	// ExcludeHostsForProxy lists "host" or "host:port" entries that bypass
	// the proxy. Matching is case-insensitive.
	ExcludeHostsForProxy []string `json:"excludeHostsForProxy,omitempty" yaml:"excludeHostsForProxy,omitempty"`

	// ProxyStrictSSL controls certificate verification for the upstream
	// proxy connection, not for the target server.
	ProxyStrictSSL *bool `json:"proxyStrictSSL,omitempty" yaml:"proxyStrictSSL,omitempty"`

	RememberCookies *bool `json:"rememberCookiesForSubsequentRequests,omitempty" yaml:"rememberCookiesForSubsequentRequests,omitempty"`

	// DecodeEscapedUnicode enables replacing literal \uXXXX sequences in
	// decoded response text.
	DecodeEscapedUnicode *bool `json:"decodeEscapedUnicodeCharacters,omitempty" yaml:"decodeEscapedUnicodeCharacters,omitempty"`

	// StrictSSL opts in to server certificate verification. Verification is
	// off by default so self-signed local endpoints work out of the box.
	StrictSSL *bool `json:"strictSSL,omitempty" yaml:"strictSSL,omitempty"`

	// HostCertificates maps "host" or "host:port" (exactly as it appears in
	// the request URL) to client certificate material.
	HostCertificates map[string]CertificateConfig `json:"hostCertificates,omitempty" yaml:"hostCertificates,omitempty"`

	// CookieFile is the path of the persistent cookie store. Empty leaves
	// cookie persistence to the host environment's default location.
	CookieFile string `json:"cookieFile,omitempty" yaml:"cookieFile,omitempty"`
}

// BoolPtr returns a pointer to a bool value
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirect returns the redirect-following setting, defaulting to true.
func (s *Settings) GetFollowRedirect() bool {
	return getBool(s.FollowRedirect, true)
}

// GetProxyStrictSSL returns the proxy TLS-strictness setting, defaulting to false.
func (s *Settings) GetProxyStrictSSL() bool {
	return getBool(s.ProxyStrictSSL, false)
}

// GetRememberCookies returns the cookie persistence setting, defaulting to true.
func (s *Settings) GetRememberCookies() bool {
	return getBool(s.RememberCookies, true)
}

// GetDecodeEscapedUnicode returns the unicode-unescape setting, defaulting to false.
func (s *Settings) GetDecodeEscapedUnicode() bool {
	return getBool(s.DecodeEscapedUnicode, false)
}

// GetStrictSSL returns the server TLS verification setting, defaulting to false.
func (s *Settings) GetStrictSSL() bool {
	return getBool(s.StrictSSL, false)
}

// SettingsFilenames contains the file names probed by FindAndLoadSettings,
// in precedence order.
var SettingsFilenames = []string{
	".restwire.json",
	"restwire.json",
	".restwire.yaml",
	"restwire.yaml",
	".restwirerc",
}

// LoadSettings loads settings from the given path, or searches the current
// directory when path is empty.
func LoadSettings(path string) (*Settings, error) {
	if path != "" {
		return loadSettingsFromFile(path)
	}
	return FindAndLoadSettings(".")
}

// FindAndLoadSettings probes dir for a known settings file name and loads
// the first match. Defaults are returned when no file is found.
func FindAndLoadSettings(dir string) (*Settings, error) {
	for _, filename := range SettingsFilenames {
		path := filepath.Join(dir, filename)
		if _, err := os.Stat(path); err == nil {
			return loadSettingsFromFile(path)
		}
	}
	return DefaultSettings(), nil
}

func loadSettingsFromFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	settings := DefaultSettings()
	if isYAMLFile(path) {
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return settings, nil
	}

	// JSON settings may carry comments and trailing commas.
	if err := json.Unmarshal(jsonc.ToJSON(data), settings); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return settings, nil
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Merge merges another settings object into this one, with other taking
// precedence for every field it sets.
func (s *Settings) Merge(other *Settings) *Settings {
	if other == nil {
		return s
	}

	result := *s // Copy

	if other.TimeoutMs != 0 {
		result.TimeoutMs = other.TimeoutMs
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if len(other.ExcludeHostsForProxy) > 0 {
		result.ExcludeHostsForProxy = other.ExcludeHostsForProxy
	}
	if other.CookieFile != "" {
		result.CookieFile = other.CookieFile
	}

	// Boolean flags - only override if explicitly set in other
	if other.FollowRedirect != nil {
		result.FollowRedirect = other.FollowRedirect
	}
	if other.ProxyStrictSSL != nil {
		result.ProxyStrictSSL = other.ProxyStrictSSL
	}
	if other.RememberCookies != nil {
		result.RememberCookies = other.RememberCookies
	}
	if other.DecodeEscapedUnicode != nil {
		result.DecodeEscapedUnicode = other.DecodeEscapedUnicode
	}
	if other.StrictSSL != nil {
		result.StrictSSL = other.StrictSSL
	}

	if len(other.HostCertificates) > 0 {
		merged := make(map[string]CertificateConfig, len(s.HostCertificates)+len(other.HostCertificates))
		for host, cert := range s.HostCertificates {
			merged[host] = cert
		}
		for host, cert := range other.HostCertificates {
			merged[host] = cert
		}
		result.HostCertificates = merged
	}

	return &result
}

// SaveSettings writes the settings to path as indented JSON.
func (s *Settings) SaveSettings(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
