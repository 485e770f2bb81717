// Package dto defines data transfer objects for the search HTTP API.
package dto

import "brokerdesk/internal/feature/mastercontract/domain/entity"

// SymbolResult is one row of a search response. It carries exactly the
// eleven public columns of the symbol master.
type SymbolResult struct {
	Symbol         string  `json:"symbol"`
	BrSymbol       string  `json:"brsymbol"`
	Name           string  `json:"name"`
	Exchange       string  `json:"exchange"`
	BrExchange     string  `json:"brexchange"`
	Token          string  `json:"token"`
	Expiry         string  `json:"expiry"`
	Strike         float64 `json:"strike"`
	LotSize        int     `json:"lotsize"`
	InstrumentType string  `json:"instrumenttype"`
	TickSize       float64 `json:"tick_size"`
}

// SearchResponse is the JSON body of GET /search/.
type SearchResponse struct {
	Status  string         `json:"status"`
	Results []SymbolResult `json:"results"`
}

// Suggestion is one autocomplete item.
type Suggestion struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Token    string `json:"token"`
	Exchange string `json:"exchange"`
}

// NewSymbolResult flattens a SymbolRecord.
func NewSymbolResult(r entity.SymbolRecord) SymbolResult {
	return SymbolResult{
		Symbol:         r.Symbol,
		BrSymbol:       r.BrSymbol,
		Name:           r.Name,
		Exchange:       r.Exchange,
		BrExchange:     r.BrExchange,
		Token:          r.Token,
		Expiry:         r.Expiry,
		Strike:         r.Strike,
		LotSize:        r.LotSize,
		InstrumentType: r.InstrumentType,
		TickSize:       r.TickSize,
	}
}

// NewSuggestion builds the "<symbol> - <name>" autocomplete item.
func NewSuggestion(r entity.SymbolRecord) Suggestion {
	return Suggestion{
		Label:    r.Symbol + " - " + r.Name,
		Value:    r.Symbol,
		Token:    r.Token,
		Exchange: r.Exchange,
	}
}
