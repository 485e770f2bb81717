// Package usecase implements the business logic for symbol master lookups and loading.
package usecase

import (
	"context"
	"strings"

	"brokerdesk/internal/feature/mastercontract/domain/entity"
)

const (
	// SuggestionLimit is the maximum number of autocomplete suggestions.
	SuggestionLimit = 10
	// DefaultSuggestionExchange is used when a suggestion request has no exchange parameter.
	// An explicitly empty exchange searches every exchange.
	DefaultSuggestionExchange = "NSE"
)

// SymbolRepository abstracts the read side of the symbol master table.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type SymbolRepository interface {
	// Search returns rows whose symbol contains query (case-insensitive). A non-empty
	// exchange must match exactly (case-insensitive). limit <= 0 means no limit.
	Search(ctx context.Context, query, exchange string, limit int) ([]entity.SymbolRecord, error)
}

// SymbolUsecase provides symbol lookups for the search route group.
type SymbolUsecase struct {
	repo SymbolRepository
}

// NewSymbolUsecase creates a new SymbolUsecase with the given repository.
func NewSymbolUsecase(r SymbolRepository) *SymbolUsecase {
	return &SymbolUsecase{repo: r}
}

// SearchSymbols returns every row matching symbol, optionally restricted to exchange.
// A blank symbol returns no rows without querying the repository.
func (u *SymbolUsecase) SearchSymbols(ctx context.Context, symbol, exchange string) ([]entity.SymbolRecord, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, nil
	}
	return u.repo.Search(ctx, symbol, strings.TrimSpace(exchange), 0)
}

// SuggestSymbols returns at most SuggestionLimit rows for autocomplete.
// An empty exchange does not filter.
func (u *SymbolUsecase) SuggestSymbols(ctx context.Context, term, exchange string) ([]entity.SymbolRecord, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}

	rows, err := u.repo.Search(ctx, term, strings.TrimSpace(exchange), SuggestionLimit)
	if err != nil {
		return nil, err
	}
	if len(rows) > SuggestionLimit {
		rows = rows[:SuggestionLimit]
	}
	return rows, nil
}
