package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformhttp "brokerdesk/internal/platform/http"
)

const sampleCSV = `symbol,brsymbol,name,exchange,brexchange,token,expiry,strike,lotsize,instrumenttype,tick_size
RELIANCE,RELIANCE-EQ,RELIANCE INDUSTRIES LTD,NSE,NSE,2885,,,1,EQ,0.05
NIFTY24DEC24000CE,NIFTY26DEC2424000CE,NIFTY,NFO,NSE_FO,35001,26-DEC-24,24000.0,25.0,CE,0.05
`

func TestReadCSV(t *testing.T) {
	t.Parallel()

	recs, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	eq := recs[0]
	assert.Equal(t, "RELIANCE", eq.Symbol)
	assert.Equal(t, "RELIANCE-EQ", eq.BrSymbol)
	assert.Equal(t, "NSE", eq.Exchange)
	assert.Equal(t, "2885", eq.Token)
	assert.Zero(t, eq.Strike, "blank strike is zero")
	assert.Equal(t, 1, eq.LotSize)
	assert.InDelta(t, 0.05, eq.TickSize, 1e-9)

	opt := recs[1]
	assert.Equal(t, "NSE_FO", opt.BrExchange)
	assert.Equal(t, "26-DEC-24", opt.Expiry)
	assert.InDelta(t, 24000.0, opt.Strike, 1e-9)
	assert.Equal(t, 25, opt.LotSize)
	assert.Equal(t, "CE", opt.InstrumentType)
}

func TestReadCSV_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "bad strike names the line",
			input:   "symbol,exchange,token,strike\nX,NSE,1,abc\n",
			wantErr: "line 2: strike",
		},
		{
			name:    "bad lotsize",
			input:   "symbol,exchange,token,lotsize\nX,NSE,1,many\n",
			wantErr: "lotsize",
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: "failed to unmarshal CSV",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ReadCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSource_Fetch_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "master.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	src := NewSource(platformhttp.NewHTTPClient(time.Second))
	recs, err := src.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	_, err = src.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "failed to open file")
}

func TestSource_Fetch_HTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/master.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(sampleCSV))
	}))
	t.Cleanup(srv.Close)

	src := NewSource(platformhttp.NewHTTPClient(5 * time.Second))

	recs, err := src.Fetch(context.Background(), srv.URL+"/master.csv")
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	_, err = src.Fetch(context.Background(), srv.URL+"/other.csv")
	assert.ErrorContains(t, err, "unexpected status 404")
}
