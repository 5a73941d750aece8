package config

import (
	"errors"
	"fmt"
	"strings"
)

// AuthMethod selects how the JSON API authenticates callers.
type AuthMethod string

const (
	// AuthMethodNone disables authentication.
	AuthMethodNone AuthMethod = "none"
	// AuthMethodBasic uses HTTP basic auth.
	AuthMethodBasic AuthMethod = "basic"
	// AuthMethodHeader compares a shared token carried in a request header.
	AuthMethodHeader AuthMethod = "header"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMethod.
func (a *AuthMethod) UnmarshalText(text []byte) error {
	v := AuthMethod(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case AuthMethodNone, AuthMethodBasic, AuthMethodHeader:
		*a = v
		return nil
	default:
		return fmt.Errorf("invalid AuthMethod: %q (valid options: none, basic, header)", v)
	}
}

// AuthConfig groups API authentication settings.
type AuthConfig struct {
	Method   AuthMethod `env:"AUTH_METHOD"   envDefault:"none"`
	Username string     `env:"AUTH_USERNAME"`
	Password string     `env:"AUTH_PASSWORD"`
	Header   string     `env:"AUTH_HEADER"   envDefault:"X-Pulse-Token"`
	Token    string     `env:"AUTH_TOKEN"`
}

// Validate checks that the selected method has its credentials.
func (a *AuthConfig) Validate() error {
	switch a.Method {
	case "", AuthMethodNone:
		return nil
	case AuthMethodBasic:
		if a.Username == "" || a.Password == "" {
			return errors.New("basic auth requires AUTH_USERNAME and AUTH_PASSWORD")
		}
	case AuthMethodHeader:
		if strings.TrimSpace(a.Header) == "" || a.Token == "" {
			return errors.New("header auth requires AUTH_HEADER and AUTH_TOKEN")
		}
	default:
		return fmt.Errorf("unsupported auth method %q", a.Method)
	}
	return nil
}
