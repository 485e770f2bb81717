// Package bootstrap builds the HTTP application from configuration.
// One routine covers every deployment: long-running servers initialise tables
// eagerly, serverless entry points lazily on the first request.
package bootstrap

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	"brokerdesk/internal/platform/session"
)

// TableInit selects when the tables are created.
type TableInit string

const (
	// TableInitEager creates tables during New; a failure aborts startup.
	TableInitEager TableInit = "eager"
	// TableInitLazy creates tables on the first request and retries after a failure.
	TableInitLazy TableInit = "lazy"
)

// Registration selects how a failing route group is handled.
type Registration string

const (
	// RegistrationStrict aborts startup on the first failing route group.
	RegistrationStrict Registration = "strict"
	// RegistrationBestEffort logs the failure and registers the remaining groups.
	RegistrationBestEffort Registration = "best_effort"
)

// ParseTableInit validates a configured mode. Empty means TableInitEager.
func ParseTableInit(s string) (TableInit, error) {
	switch TableInit(strings.ToLower(strings.TrimSpace(s))) {
	case "", TableInitEager:
		return TableInitEager, nil
	case TableInitLazy:
		return TableInitLazy, nil
	}
	return "", fmt.Errorf("unknown table init mode %q", s)
}

// ParseRegistration validates a configured mode. Empty means RegistrationBestEffort.
func ParseRegistration(s string) (Registration, error) {
	switch Registration(strings.ToLower(strings.TrimSpace(s))) {
	case "", RegistrationBestEffort:
		return RegistrationBestEffort, nil
	case RegistrationStrict:
		return RegistrationStrict, nil
	}
	return "", fmt.Errorf("unknown registration mode %q", s)
}

// Options are the deployment-specific inputs of New.
type Options struct {
	Env          string
	TableInit    TableInit
	Registration Registration

	// Templates overrides the embedded templates when set.
	Templates fs.FS
	// StaticDir is served under /static when it exists.
	StaticDir string

	DebugEndpoint bool
	// DBDriver and DBSourceEnv describe the database on /api/debug.
	DBDriver    string
	DBSourceEnv string

	SessionSecret string
	Cookie        session.CookieOptions

	// LoginLimit is the number of login attempts per client IP per LoginWindow.
	LoginLimit  int
	LoginWindow time.Duration

	// APILogQueue is the api log queue length; 0 selects the default.
	APILogQueue int
}

func (o *Options) applyDefaults() {
	if o.TableInit == "" {
		o.TableInit = TableInitEager
	}
	if o.Registration == "" {
		o.Registration = RegistrationBestEffort
	}
	if o.Cookie.Name == "" {
		o.Cookie = session.DefaultCookieOptions()
	}
	if o.LoginLimit <= 0 {
		o.LoginLimit = 10
	}
	if o.LoginWindow <= 0 {
		o.LoginWindow = time.Minute
	}
}
