package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"dripfeed/internal/logging"
	"dripfeed/internal/queue"
	"dripfeed/internal/services"
)

var (
	// ErrUnknownApp reports an app name missing from the catalog.
	ErrUnknownApp = fmt.Errorf("%w: unknown app", services.ErrConfiguration)
	// ErrUnknownEvent reports an event name the app does not define.
	ErrUnknownEvent = fmt.Errorf("%w: unknown event", services.ErrConfiguration)
)

// App is one catalog entry.
type App struct {
	Name     string            `json:"-"`
	AppToken string            `json:"app_token"`
	UseGet   bool              `json:"use_get_request"`
	Events   map[string]string `json:"events"`
}

// EventNames returns the app's events sorted by name.
func (a App) EventNames() []string {
	names := make([]string, 0, len(a.Events))
	for name := range a.Events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog is a file-backed, reloadable app catalog. Safe for concurrent use.
type Catalog struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	apps    map[string]App
	modTime time.Time
	size    int64
}

// Open loads the catalog at path. A missing file yields an empty catalog so
// jobs can still be submitted with explicit tokens.
func Open(path string, logger *slog.Logger) (*Catalog, error) {
	c := &Catalog{
		path:   strings.TrimSpace(path),
		logger: logging.NewComponentLogger(logger, "catalog"),
		apps:   map[string]App{},
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the backing file location.
func (c *Catalog) Path() string {
	return c.path
}

// Reload rereads the backing file unconditionally.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	info, err := os.Stat(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.mu.Lock()
			c.apps = map[string]App{}
			c.modTime = time.Time{}
			c.size = 0
			c.mu.Unlock()
			return nil
		}
		return fmt.Errorf("stat catalog: %w", err)
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	apps, err := parse(data)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "catalog", "parse", c.path, err)
	}

	c.mu.Lock()
	c.apps = apps
	c.modTime = info.ModTime()
	c.size = info.Size()
	c.mu.Unlock()

	c.logger.Debug("catalog loaded",
		logging.String("path", c.path),
		logging.Int("apps", len(apps)),
	)
	return nil
}

func parse(data []byte) (map[string]App, error) {
	raw := map[string]App{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	apps := make(map[string]App, len(raw))
	for name, app := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("app name must not be empty")
		}
		app.Name = name
		if app.Events == nil {
			app.Events = map[string]string{}
		}
		apps[name] = app
	}
	return apps, nil
}

// refreshIfStale reloads when the file changed since the last load.
func (c *Catalog) refreshIfStale() {
	if c.path == "" {
		return
	}
	info, err := os.Stat(c.path)
	c.mu.RLock()
	modTime, size, empty := c.modTime, c.size, len(c.apps) == 0
	c.mu.RUnlock()
	switch {
	case err != nil && errors.Is(err, os.ErrNotExist) && empty:
		return
	case err == nil && info.ModTime().Equal(modTime) && info.Size() == size:
		return
	}
	if err := c.Reload(); err != nil {
		logging.WarnWithContext(c.logger, "catalog reload failed; keeping previous entries", "catalog_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the JSON in "+c.path),
		)
	}
}

// Apps lists catalog entries sorted by name.
func (c *Catalog) Apps() []App {
	c.refreshIfStale()
	c.mu.RLock()
	defer c.mu.RUnlock()
	apps := make([]App, 0, len(c.apps))
	for _, app := range c.apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps
}

// Lookup returns the named app.
func (c *Catalog) Lookup(name string) (App, error) {
	c.refreshIfStale()
	c.mu.RLock()
	defer c.mu.RUnlock()
	app, ok := c.apps[strings.TrimSpace(name)]
	if !ok {
		return App{}, fmt.Errorf("%w %q", ErrUnknownApp, name)
	}
	return app, nil
}

// Resolve turns an app name and an ordered list of event names into the
// credential half of a target and the step list, preserving event order.
func (c *Catalog) Resolve(appName string, events []string) (queue.Target, queue.Steps, error) {
	app, err := c.Lookup(appName)
	if err != nil {
		return queue.Target{}, nil, err
	}
	steps := make(queue.Steps, 0, len(events))
	for _, name := range events {
		name = strings.TrimSpace(name)
		token, ok := app.Events[name]
		if !ok {
			return queue.Target{}, nil, fmt.Errorf("%w %q for app %q", ErrUnknownEvent, name, app.Name)
		}
		steps = append(steps, queue.Step{Name: name, Payload: token})
	}
	target := queue.Target{
		AppName:    app.Name,
		Credential: app.AppToken,
		UseGet:     app.UseGet,
	}
	return target, steps, nil
}
