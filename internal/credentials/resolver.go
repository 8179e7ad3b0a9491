package credentials

import (
	"fmt"
	"net/url"

	"dawncrm/internal/utils"
)

// Source indicates where credentials were found
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceEnv     Source = "env"
	SourceURL     Source = "url"
	SourceNone    Source = "none"
)

// Credentials represents resolved database credentials
type Credentials struct {
	Username string
	Password string
	Host     string
	Source   Source
}

// Resolver finds the remote database password.
// Priority order: Keyring > Environment Variables > Config URL
type Resolver struct {
	keyringAvailable func() bool
}

// NewResolver creates a new credential resolver
func NewResolver() *Resolver {
	return &Resolver{keyringAvailable: IsAvailable}
}

// Resolve looks up credentials for the database at rawURL. username
// overrides the user embedded in the URL. A URL without any password
// source resolves to SourceNone, which is valid for trust or peer auth.
func (r *Resolver) Resolve(rawURL, username string) (*Credentials, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL: %w", err)
	}

	creds := &Credentials{Username: username, Host: u.Host, Source: SourceNone}
	if creds.Username == "" {
		creds.Username = GetUsername(u.Host)
	}
	if creds.Username == "" && u.User != nil {
		creds.Username = u.User.Username()
	}

	// Priority 1: keyring, when the user is known
	if creds.Username != "" && creds.Host != "" && r.keyringAvailable() {
		password, err := Get(creds.Host, creds.Username)
		if err == nil {
			creds.Password = password
			creds.Source = SourceKeyring
			return creds, nil
		}
		utils.Debugf("Keyring lookup for %s@%s: %v", creds.Username, creds.Host, err)
	}

	// Priority 2: environment variables
	if password := GetPassword(u.Host); password != "" {
		creds.Password = password
		creds.Source = SourceEnv
		return creds, nil
	}

	// Priority 3: password embedded in the config URL
	if u.User != nil {
		if password, ok := u.User.Password(); ok && password != "" {
			creds.Password = password
			creds.Source = SourceURL
			return creds, nil
		}
	}

	return creds, nil
}

// ResolveURL returns rawURL with the resolved user and password filled in.
func (r *Resolver) ResolveURL(rawURL, username string) (string, *Credentials, error) {
	if rawURL == "" {
		return "", &Credentials{Source: SourceNone}, nil
	}
	creds, err := r.Resolve(rawURL, username)
	if err != nil {
		return "", nil, err
	}
	u, _ := url.Parse(rawURL)
	switch {
	case creds.Password != "":
		u.User = url.UserPassword(creds.Username, creds.Password)
	case creds.Username != "":
		u.User = url.User(creds.Username)
	}
	return u.String(), creds, nil
}

// Redact hides the password in a connection URL for display.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
