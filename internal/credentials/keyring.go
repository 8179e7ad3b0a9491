package credentials

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringServicePrefix is the prefix for all dawncrm keyring entries
	KeyringServicePrefix = "dawncrm"
)

// ErrNotFound is returned when the keyring holds no entry for a host and user.
var ErrNotFound = errors.New("credentials not found in keyring")

// getServiceName returns the keyring service name for a database host
func getServiceName(host string) string {
	return fmt.Sprintf("%s-%s", KeyringServicePrefix, host)
}

func checkKey(host, username string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	return nil
}

// Set stores a database password in the OS keyring
func Set(host, username, password string) error {
	if err := checkKey(host, username); err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if err := keyring.Set(getServiceName(host), username, password); err != nil {
		return fmt.Errorf("failed to store credentials in keyring: %w", err)
	}
	return nil
}

// Get retrieves a database password from the OS keyring
func Get(host, username string) (string, error) {
	if err := checkKey(host, username); err != nil {
		return "", err
	}

	password, err := keyring.Get(getServiceName(host), username)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w: host %q, user %q", ErrNotFound, host, username)
	}
	if err != nil {
		return "", fmt.Errorf("failed to retrieve credentials from keyring: %w", err)
	}
	return password, nil
}

// Delete removes a database password from the OS keyring
func Delete(host, username string) error {
	if err := checkKey(host, username); err != nil {
		return err
	}

	err := keyring.Delete(getServiceName(host), username)
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: host %q, user %q", ErrNotFound, host, username)
	}
	if err != nil {
		return fmt.Errorf("failed to delete credentials from keyring: %w", err)
	}
	return nil
}

// IsAvailable checks if the keyring is accessible
func IsAvailable() bool {
	// A working keyring answers ErrNotFound for an entry that was never written.
	_, err := keyring.Get(KeyringServicePrefix+"-keyring-probe", "probe")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
