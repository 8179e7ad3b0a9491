package remote

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// DriverConstructor creates a driver from a connection URL
type DriverConstructor func(ctx context.Context, rawURL string) (Driver, error)

// Registry holds registered driver constructors keyed by URL scheme
type Registry struct {
	mu                 sync.RWMutex
	schemeConstructors map[string]DriverConstructor
}

var globalRegistry = &Registry{
	schemeConstructors: make(map[string]DriverConstructor),
}

func init() {
	RegisterScheme("postgres", openPostgres)
	RegisterScheme("postgresql", openPostgres)
	RegisterScheme("memory", func(context.Context, string) (Driver, error) {
		return NewMemoryDriver(), nil
	})
}

func openPostgres(ctx context.Context, rawURL string) (Driver, error) {
	return NewPostgresDriver(ctx, rawURL)
}

// RegisterScheme registers a driver constructor for a URL scheme
func RegisterScheme(scheme string, constructor DriverConstructor) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.schemeConstructors[strings.ToLower(scheme)] = constructor
}

// GetSchemeConstructor returns the constructor for a URL scheme
func GetSchemeConstructor(scheme string) (DriverConstructor, error) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	constructor, ok := globalRegistry.schemeConstructors[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("unsupported URL scheme: %s", scheme)
	}
	return constructor, nil
}

// Schemes returns the registered URL schemes, sorted.
func Schemes() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]string, 0, len(globalRegistry.schemeConstructors))
	for k := range globalRegistry.schemeConstructors {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// OpenDriver picks a driver by the scheme of rawURL.
func OpenDriver(ctx context.Context, rawURL string) (Driver, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL: %w", err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("remote URL %q has no scheme", rawURL)
	}
	constructor, err := GetSchemeConstructor(u.Scheme)
	if err != nil {
		return nil, err
	}
	return constructor(ctx, rawURL)
}

// Connect returns a client for rawURL. An empty URL yields an unconfigured
// client rather than an error.
func Connect(ctx context.Context, rawURL string) (*Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return NewClient(nil), nil
	}
	driver, err := OpenDriver(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return NewClient(driver), nil
}
