// Package adapters はmastercontractフィーチャーのリポジトリ実装を提供します。
package adapters

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"brokerdesk/internal/feature/mastercontract/domain/entity"
	"brokerdesk/internal/feature/mastercontract/usecase"
)

// upsertBatchSize は ReplaceExchange が1文で書き込む件数です。
const upsertBatchSize = 500

// likeEscaper は LIKE のワイルドカードをリテラルとして扱うためのエスケープです。
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// symbolGorm はSymbolRepository と ContractStore の gorm 実装です。
type symbolGorm struct {
	db *gorm.DB
}

var (
	_ usecase.SymbolRepository = (*symbolGorm)(nil)
	_ usecase.ContractStore    = (*symbolGorm)(nil)
)

// NewSymbolRepository は指定されたDB接続でsymbolGormリポジトリの新しいインスタンスを生成します。
func NewSymbolRepository(db *gorm.DB) *symbolGorm {
	return &symbolGorm{db: db}
}

// Search は symbol を部分一致（大文字小文字を区別しない）で検索します。
// exchange が空でなければ完全一致で絞り込みます。symbol ASC, id ASC 順。
func (r *symbolGorm) Search(ctx context.Context, query, exchange string, limit int) ([]entity.SymbolRecord, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToUpper(query)) + "%"

	tx := r.db.WithContext(ctx).
		Where(`UPPER(symbol) LIKE ? ESCAPE '\'`, pattern)
	if exchange != "" {
		tx = tx.Where("UPPER(exchange) = ?", strings.ToUpper(exchange))
	}
	tx = tx.Order("symbol ASC").Order("id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var rows []entity.SymbolRecord
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertBatch は (token, exchange) をキーにレコードを挿入または更新します。
func (r *symbolGorm) UpsertBatch(ctx context.Context, records []entity.SymbolRecord) error {
	if len(records) == 0 {
		return nil
	}
	return upsert(r.db.WithContext(ctx), records)
}

// ReplaceExchange は指定取引所の行を削除し、records をUPSERTします。
// すべて1トランザクションで行い、途中で失敗した場合は削除も取り消されます。
func (r *symbolGorm) ReplaceExchange(ctx context.Context, exchange string, records []entity.SymbolRecord) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("UPPER(exchange) = ?", strings.ToUpper(exchange)).Delete(&entity.SymbolRecord{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected

		for start := 0; start < len(records); start += upsertBatchSize {
			end := min(start+upsertBatchSize, len(records))
			if err := upsert(tx, records[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func upsert(tx *gorm.DB, records []entity.SymbolRecord) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}, {Name: "exchange"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"symbol", "brsymbol", "name", "brexchange", "expiry",
			"strike", "lotsize", "instrumenttype", "tick_size",
		}),
	}).Create(&records).Error
}
