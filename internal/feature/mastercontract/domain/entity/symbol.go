// Package entity defines the domain models for the mastercontract feature.
package entity

// SymbolRecord is one row of the symbol master (master contract) table.
// It maps the platform symbol to the broker's symbol, exchange segment and
// instrument token. Rows are reference data: replaced by the master contract
// loader and only read by the request path.
type SymbolRecord struct {
	ID             uint    `gorm:"primaryKey"`
	Symbol         string  `gorm:"size:100;not null;index:idx_symtoken_symbol_exchange,priority:1"`
	BrSymbol       string  `gorm:"column:brsymbol;size:100;not null"`
	Name           string  `gorm:"size:255"`
	Exchange       string  `gorm:"size:20;not null;index:idx_symtoken_symbol_exchange,priority:2;uniqueIndex:idx_symtoken_token_exchange,priority:2"`
	BrExchange     string  `gorm:"column:brexchange;size:20"`
	Token          string  `gorm:"size:50;not null;uniqueIndex:idx_symtoken_token_exchange,priority:1"`
	Expiry         string  `gorm:"size:20"`
	Strike         float64 `gorm:"not null;default:0"`
	LotSize        int     `gorm:"column:lotsize;not null;default:1"`
	InstrumentType string  `gorm:"column:instrumenttype;size:20"`
	TickSize       float64 `gorm:"column:tick_size;not null;default:0"`
}

// TableName keeps the table name used by the broker master contract scripts.
func (SymbolRecord) TableName() string {
	return "symtoken"
}
