package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	mcadapters "brokerdesk/internal/feature/mastercontract/adapters"
	mcentity "brokerdesk/internal/feature/mastercontract/domain/entity"
	platformhttp "brokerdesk/internal/platform/http"
)

const masterCSV = `symbol,brsymbol,name,exchange,brexchange,token,expiry,strike,lotsize,instrumenttype,tick_size
RELIANCE,RELIANCE-EQ,RELIANCE INDUSTRIES LTD,NSE,NSE,2885,,,1,EQ,0.05
TCS,TCS-EQ,TATA CONSULTANCY SERVICES,NSE,NSE,11536,,,1,EQ,0.05
,MISSING-EQ,NO SYMBOL,NSE,NSE,1,,,1,EQ,0.05
`

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "master.csv")
	require.NoError(t, os.WriteFile(path, []byte(masterCSV), 0o600))

	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, mr.Set("symsearch:NSE:REL:10", "[]"))

	src := mcadapters.NewSource(platformhttp.NewHTTPClient(time.Second))
	res, err := load(context.Background(), db, rdb, src, loadArgs{Source: path, ReplaceExchange: "NSE"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Loaded)
	assert.Equal(t, 1, res.Skipped)

	var count int64
	require.NoError(t, db.Model(&mcentity.SymbolRecord{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	assert.False(t, mr.Exists("symsearch:NSE:REL:10"), "stale searches are invalidated")
}

func TestLoad_MissingSource(t *testing.T) {
	t.Parallel()

	src := mcadapters.NewSource(platformhttp.NewHTTPClient(time.Second))
	_, err := load(context.Background(), setupTestDB(t), nil, src, loadArgs{Source: filepath.Join(t.TempDir(), "nope.csv")}, zap.NewNop())
	assert.ErrorContains(t, err, "failed to open file")
}

func TestRootCmd_RequiresSource(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&nopWriter{})
	cmd.SetErr(&nopWriter{})
	err := cmd.Execute()
	assert.ErrorContains(t, err, `required flag(s) "source" not set`)
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }
