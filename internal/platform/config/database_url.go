package config

import (
	"fmt"
	"os"
	"strings"
)

// DefaultDatabaseURL is used when no database variable is set.
const DefaultDatabaseURL = "sqlite://db/brokerdesk.db"

// URLOrder decides which database variable wins when several are set.
type URLOrder string

const (
	// OrderStandard prefers DATABASE_URL, then the Postgres integration variables.
	OrderStandard URLOrder = "standard"
	// OrderPostgresFirst prefers the Postgres integration variables over DATABASE_URL.
	OrderPostgresFirst URLOrder = "postgres_first"
)

// ParseURLOrder validates a configured order. Empty means OrderStandard.
func ParseURLOrder(s string) (URLOrder, error) {
	switch URLOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderStandard:
		return OrderStandard, nil
	case OrderPostgresFirst:
		return OrderPostgresFirst, nil
	}
	return "", fmt.Errorf("unknown database url order %q", s)
}

// Names returns the unprefixed variable names in resolution order.
func (o URLOrder) Names() []string {
	if o == OrderPostgresFirst {
		return []string{"POSTGRES_URL", "POSTGRES_PRISMA_URL", "DATABASE_URL"}
	}
	return []string{"DATABASE_URL", "POSTGRES_URL", "POSTGRES_PRISMA_URL"}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// EnvLookup reads the process environment.
var EnvLookup LookupFunc = os.LookupEnv

// ResolveDatabaseURL walks the variable names for order, first unprefixed and then
// once per prefix, and returns the first non-empty value with the variable it came from.
// When nothing is set it returns DefaultDatabaseURL with source "default".
func ResolveDatabaseURL(lookup LookupFunc, order URLOrder, prefixes []string) (string, string) {
	names := order.Names()

	candidates := make([]string, 0, len(names)*(len(prefixes)+1))
	candidates = append(candidates, names...)
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for _, n := range names {
			candidates = append(candidates, p+n)
		}
	}

	for _, key := range candidates {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), key
		}
	}
	return DefaultDatabaseURL, "default"
}
