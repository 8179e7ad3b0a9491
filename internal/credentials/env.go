package credentials

import (
	"os"
	"strings"
)

// EnvPrefix prefixes every credential environment variable.
const EnvPrefix = "DAWNCRM_"

// normalizeHost converts a database host to the format used in environment variables
// Example: "db.example-shop.com:5432" becomes "DB_EXAMPLE_SHOP_COM_5432"
func normalizeHost(host string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, host)
}

// envNames returns the variables consulted for a field, most specific first:
// DAWNCRM_{HOST}_{FIELD}, then DAWNCRM_REMOTE_{FIELD}.
func envNames(host, field string) []string {
	field = strings.ToUpper(field)
	names := make([]string, 0, 2)
	if host != "" {
		names = append(names, EnvPrefix+normalizeHost(host)+"_"+field)
	}
	return append(names, EnvPrefix+"REMOTE_"+field)
}

func lookupEnv(host, field string) string {
	for _, name := range envNames(host, field) {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// GetUsername retrieves the database username from environment variables
func GetUsername(host string) string {
	return lookupEnv(host, "USER")
}

// GetPassword retrieves the database password from environment variables
func GetPassword(host string) string {
	return lookupEnv(host, "PASSWORD")
}

// HasCredentials checks if a password exists in environment variables
func HasCredentials(host string) bool {
	return GetPassword(host) != ""
}

// EnvVarName returns the host-specific variable for field ("USER" or
// "PASSWORD"), for use in help output.
func EnvVarName(host, field string) string {
	return envNames(host, field)[0]
}
