package bootstrap

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apilogentity "brokerdesk/internal/feature/apilog/domain/entity"
	authadapters "brokerdesk/internal/feature/auth/adapters"
	authentity "brokerdesk/internal/feature/auth/domain/entity"
	mcentity "brokerdesk/internal/feature/mastercontract/domain/entity"
	platformdb "brokerdesk/internal/platform/db"
	corehandler "brokerdesk/internal/platform/http/handler"
)

// tableSet is the group of tables owned by one feature.
type tableSet struct {
	name   string
	models []any
}

func tableSets() []tableSet {
	return []tableSet{
		{name: "auth", models: []any{&authentity.User{}, &authadapters.SessionModel{}}},
		{name: "master contract", models: []any{&mcentity.SymbolRecord{}}},
		{name: "api log", models: []any{&apilogentity.APILog{}}},
	}
}

// ensureTables creates every table set. Safe to repeat.
func ensureTables(db *gorm.DB) error {
	for _, s := range tableSets() {
		if err := platformdb.EnsureTables(db, s.models...); err != nil {
			return fmt.Errorf("%s tables: %w", s.name, err)
		}
	}
	return nil
}

// lazyTables runs ensure once it succeeds. A failed attempt is retried by the next request.
type lazyTables struct {
	mu     sync.Mutex
	done   bool
	ensure func() error
	log    *zap.Logger
}

func newLazyTables(ensure func() error, log *zap.Logger) *lazyTables {
	return &lazyTables{ensure: ensure, log: log}
}

func (l *lazyTables) run() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return nil
	}
	if err := l.ensure(); err != nil {
		return err
	}
	l.done = true
	l.log.Info("tables initialised on first request")
	return nil
}

// Middleware answers 500 while the tables cannot be created.
// Paths with a prefix in skip are served without waiting for the tables.
func (l *lazyTables) Middleware(skip ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, p := range skip {
			if strings.HasPrefix(path, p) {
				c.Next()
				return
			}
		}
		if err := l.run(); err != nil {
			corehandler.AbortInternal(c, fmt.Errorf("table init: %w", err))
			return
		}
		c.Next()
	}
}
