// Package credentials resolves the bearer token passed to the client tool.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// Source names where a token came from.
type Source string

const (
	SourceLiteral Source = "literal"
	SourceEnv     Source = "env"
	SourceFile    Source = "file"
	SourceKeyring Source = "keyring"
)

// ErrNoToken is returned when no token source is configured.
var ErrNoToken = errors.New("no token configured")

// Config lists the candidate token sources. The first one set wins, in field
// order.
type Config struct {
	Token          string
	TokenEnv       string
	TokenFile      string
	KeyringService string
	KeyringUser    string
}

// Resolve returns a token source for the first configured source.
//
// File tokens are re-read when the cached token expires, so rotated
// service-account tokens are picked up. Other sources are static.
func Resolve(cfg Config) (oauth2.TokenSource, Source, error) {
	switch {
	case cfg.Token != "":
		tok, err := newToken(cfg.Token)
		if err != nil {
			return nil, SourceLiteral, err
		}
		return oauth2.StaticTokenSource(tok), SourceLiteral, nil

	case cfg.TokenEnv != "":
		value := os.Getenv(cfg.TokenEnv)
		if strings.TrimSpace(value) == "" {
			return nil, SourceEnv, fmt.Errorf("environment variable %s is empty", cfg.TokenEnv)
		}
		tok, err := newToken(value)
		if err != nil {
			return nil, SourceEnv, err
		}
		return oauth2.StaticTokenSource(tok), SourceEnv, nil

	case cfg.TokenFile != "":
		src := &fileSource{path: cfg.TokenFile}
		tok, err := src.Token()
		if err != nil {
			return nil, SourceFile, err
		}
		return oauth2.ReuseTokenSource(tok, src), SourceFile, nil

	case cfg.KeyringService != "":
		value, err := keyring.Get(cfg.KeyringService, keyringUser(cfg.KeyringUser))
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return nil, SourceKeyring, fmt.Errorf("token not found in keyring service %s", cfg.KeyringService)
			}
			return nil, SourceKeyring, fmt.Errorf("failed to retrieve token from keyring: %w", err)
		}
		tok, err := newToken(value)
		if err != nil {
			return nil, SourceKeyring, err
		}
		return oauth2.StaticTokenSource(tok), SourceKeyring, nil
	}

	return nil, "", ErrNoToken
}

// Token fetches the access token from src. A nil src yields an empty token.
func Token(src oauth2.TokenSource) (string, error) {
	if src == nil {
		return "", nil
	}
	tok, err := src.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Store saves token in the OS keyring.
func Store(service, user, token string) error {
	if service == "" {
		return fmt.Errorf("keyring service is required")
	}
	if _, err := newToken(token); err != nil {
		return err
	}
	if err := keyring.Set(service, keyringUser(user), strings.TrimSpace(token)); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// Delete removes a stored token. A missing entry is not an error.
func Delete(service, user string) error {
	if err := keyring.Delete(service, keyringUser(user)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

func keyringUser(user string) string {
	if user == "" {
		return "default"
	}
	return user
}

// newToken trims surrounding whitespace, rejects embedded line breaks and
// attaches the JWT expiry when the token carries one.
func newToken(raw string) (*oauth2.Token, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, fmt.Errorf("token is empty")
	}
	if strings.ContainsAny(value, "\r\n") {
		return nil, fmt.Errorf("tokens cannot contain carriage returns or new lines")
	}

	tok := &oauth2.Token{AccessToken: value, TokenType: "Bearer"}
	if claims, err := Inspect(value); err == nil {
		tok.Expiry = claims.ExpiresAt
	}
	return tok, nil
}

// fileSource reads a token from a file on every call.
type fileSource struct {
	path string
}

func (s *fileSource) Token() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	return newToken(string(data))
}
