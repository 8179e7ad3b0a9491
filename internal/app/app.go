package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dawncrm/backend"
	"dawncrm/backend/remote"
	"dawncrm/backend/sync"
	"dawncrm/internal/config"
	"dawncrm/internal/credentials"
	"dawncrm/internal/exchange"
	"dawncrm/internal/notify"
	"dawncrm/internal/utils"
)

// App holds the application state
type App struct {
	config    *config.Config
	db        *backend.Database
	persister backend.Persister
	store     *backend.Store
	client    *remote.Client
	sync      *sync.Manager
	notifier  *notify.Dispatcher
	now       func() time.Time
	started   bool
}

// Options overrides parts of the wiring. Zero values select the defaults
// derived from Config.
type Options struct {
	Config *config.Config
	// Persister replaces the SQLite database.
	Persister backend.Persister
	// Client replaces the client built from Config.Remote.
	Client     *remote.Client
	Notifier   *notify.Dispatcher
	HTTPClient *http.Client
	Now        func() time.Time
}

// New creates and initializes a new App instance. Sync is not started;
// call StartSync for that.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.GetConfig(); err != nil {
			return nil, err
		}
	}

	a := &App{config: cfg, persister: opts.Persister, notifier: opts.Notifier, now: opts.Now}
	if a.now == nil {
		a.now = time.Now
	}

	if a.persister == nil {
		path, err := cfg.ResolvedDatabasePath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		db, err := backend.InitDatabase(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		a.persister = db
	}

	store, err := backend.Open(a.persister)
	if err != nil {
		a.closeDB()
		return nil, err
	}
	a.store = store

	a.client = opts.Client
	if a.client == nil {
		if a.client, err = connect(ctx, cfg); err != nil {
			a.closeDB()
			return nil, err
		}
	}
	a.sync = a.newManager()

	if a.notifier == nil {
		a.notifier = notify.FromConfig(cfg.Notify, opts.HTTPClient)
	}
	return a, nil
}

// connect builds the remote client. Sync disabled or no URL gives an
// unconfigured client, which keeps the CRM local-only.
func connect(ctx context.Context, cfg *config.Config) (*remote.Client, error) {
	if !cfg.Sync.Enabled || cfg.Remote.URL == "" {
		return remote.NewClient(nil), nil
	}
	rawURL, creds, err := credentials.NewResolver().ResolveURL(cfg.Remote.URL, cfg.Remote.Username)
	if err != nil {
		return nil, err
	}
	utils.Debugf("Connecting to %s (credentials: %s)", credentials.Redact(rawURL), creds.Source)

	client, err := remote.Connect(ctx, rawURL)
	if err != nil {
		return nil, utils.WrapWithSuggestion(err,
			fmt.Sprintf("Supported remote schemes: %v", remote.Schemes()))
	}
	return client, nil
}

func (a *App) newManager() *sync.Manager {
	return sync.NewManager(a.store, a.client, sync.Options{PushInterval: a.config.SyncInterval()})
}

func (a *App) Config() *config.Config { return a.config }

func (a *App) Store() *backend.Store { return a.store }

func (a *App) Sync() *sync.Manager { return a.sync }

func (a *App) Client() *remote.Client { return a.client }

func (a *App) Notifier() *notify.Dispatcher { return a.notifier }

// Database returns the SQLite database, or nil when a custom persister is used.
func (a *App) Database() *backend.Database { return a.db }

// SyncConfigured reports whether a remote backend is set up.
func (a *App) SyncConfigured() bool { return a.client.Configured() }

// StartSync runs the sync manager's startup protocol. Connection failures
// are reported in the result and leave the app usable offline.
func (a *App) StartSync(ctx context.Context) sync.InitResult {
	a.started = true
	result := a.sync.Initialize(ctx)
	if result.Err != nil && result.Configured && !result.Connected {
		result.Err = utils.ErrRemoteOffline(result.Err.Error())
	}
	return result
}

// Migrate applies the remote schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	if !a.client.Configured() {
		return utils.ErrSyncNotConfigured()
	}
	migrator, ok := a.client.Driver().(interface{ Migrate(context.Context) error })
	if !ok {
		return fmt.Errorf("remote driver %T has no migrations", a.client.Driver())
	}
	return migrator.Migrate(ctx)
}

// Export captures the exported collections now.
func (a *App) Export() exchange.Document {
	return exchange.Export(a.store, a.now())
}

// Import replaces the persisted document with an export file and reloads
// the store. It is refused once sync has started.
func (a *App) Import(data []byte) (exchange.Document, error) {
	if a.started {
		return exchange.Document{}, errors.New("import must run before sync starts")
	}
	doc, err := exchange.Import(data, a.persister)
	if err != nil {
		return doc, err
	}
	store, err := backend.Open(a.persister)
	if err != nil {
		return doc, fmt.Errorf("failed to reload store after import: %w", err)
	}
	a.store = store
	a.sync = a.newManager()
	return doc, nil
}

// Backup uploads an export to the configured bucket.
func (a *App) Backup(ctx context.Context, format string) (string, error) {
	uploader, err := exchange.NewS3Uploader(ctx, a.config.Backup)
	if err != nil {
		if errors.Is(err, exchange.ErrBackupNotConfigured) {
			return "", utils.WrapWithSuggestion(err, "Set 'backup.bucket' and 'backup.region' in config.json")
		}
		return "", err
	}
	return uploader.Upload(ctx, a.Export(), format)
}

// Close stops sync and releases the remote and local connections.
func (a *App) Close() {
	a.sync.Cleanup()
	a.client.Close()
	a.closeDB()
}

func (a *App) closeDB() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		utils.Warnf("Failed to close database: %v", err)
	}
	a.db = nil
}
