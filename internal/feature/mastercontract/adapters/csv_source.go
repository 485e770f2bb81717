package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"brokerdesk/internal/feature/mastercontract/domain/entity"
)

// csvRow is one line of the master contract CSV. Numeric columns are kept as
// strings so that blank cells do not fail the whole file.
type csvRow struct {
	Symbol         string `csv:"symbol"`
	BrSymbol       string `csv:"brsymbol"`
	Name           string `csv:"name"`
	Exchange       string `csv:"exchange"`
	BrExchange     string `csv:"brexchange"`
	Token          string `csv:"token"`
	Expiry         string `csv:"expiry"`
	Strike         string `csv:"strike"`
	LotSize        string `csv:"lotsize"`
	InstrumentType string `csv:"instrumenttype"`
	TickSize       string `csv:"tick_size"`
}

func (r csvRow) toRecord(line int) (entity.SymbolRecord, error) {
	strike, err := parseFloat(r.Strike)
	if err != nil {
		return entity.SymbolRecord{}, fmt.Errorf("line %d: strike %q: %w", line, r.Strike, err)
	}
	tick, err := parseFloat(r.TickSize)
	if err != nil {
		return entity.SymbolRecord{}, fmt.Errorf("line %d: tick_size %q: %w", line, r.TickSize, err)
	}
	lot := 1
	if s := strings.TrimSpace(r.LotSize); s != "" {
		// 一部のブローカーは "50.0" のように小数で返す
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return entity.SymbolRecord{}, fmt.Errorf("line %d: lotsize %q: %w", line, r.LotSize, err)
		}
		lot = int(f)
	}

	return entity.SymbolRecord{
		Symbol:         strings.TrimSpace(r.Symbol),
		BrSymbol:       strings.TrimSpace(r.BrSymbol),
		Name:           strings.TrimSpace(r.Name),
		Exchange:       strings.TrimSpace(r.Exchange),
		BrExchange:     strings.TrimSpace(r.BrExchange),
		Token:          strings.TrimSpace(r.Token),
		Expiry:         strings.TrimSpace(r.Expiry),
		Strike:         strike,
		LotSize:        lot,
		InstrumentType: strings.TrimSpace(r.InstrumentType),
		TickSize:       tick,
	}, nil
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// ReadCSV はマスターコントラクトCSVを読み込み、SymbolRecord のスライスに変換します。
func ReadCSV(r io.Reader) ([]entity.SymbolRecord, error) {
	var rows []csvRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal CSV: %w", err)
	}

	out := make([]entity.SymbolRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := row.toRecord(i + 2) // ヘッダー行を1行目とする
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Source opens master contract data from a local path or an http(s) URL.
type Source struct {
	client *http.Client
}

// NewSource は HTTP ソース用のクライアントを指定して Source を生成します。
func NewSource(client *http.Client) *Source {
	return &Source{client: client}
}

// Open は location を開きます。呼び出し側で Close する必要があります。
func (s *Source) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download master contract: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		_ = res.Body.Close()
		return nil, fmt.Errorf("master contract download: unexpected status %d", res.StatusCode)
	}
	return res.Body, nil
}

// Fetch は location を開いて CSV を読み込みます。
func (s *Source) Fetch(ctx context.Context, location string) ([]entity.SymbolRecord, error) {
	rc, err := s.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadCSV(rc)
}
