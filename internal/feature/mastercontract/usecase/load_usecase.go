package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"brokerdesk/internal/feature/mastercontract/domain/entity"
)

const (
	loadBatchSize = 500 // 1回のUPSERTで書き込む件数

	// EventMasterContract is the realtime event emitted after a load.
	EventMasterContract = "master_contract_download"
)

// ContractStore abstracts the write side of the symbol master table.
type ContractStore interface {
	UpsertBatch(ctx context.Context, records []entity.SymbolRecord) error
	// ReplaceExchange deletes the exchange's rows and upserts records in one
	// transaction, returning the number of deleted rows. On error nothing changes.
	ReplaceExchange(ctx context.Context, exchange string, records []entity.SymbolRecord) (int64, error)
}

// EventPublisher notifies connected clients. Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// LoadResult summarises one master contract load.
type LoadResult struct {
	Loaded     int
	Skipped    int
	Duplicates int // 同じ (token, exchange) の後続行で上書きされた行数
	Deleted    int64
}

// LoadUsecase は銘柄マスタ（マスターコントラクト）をデータベースへ取り込むユースケースです。
type LoadUsecase struct {
	store     ContractStore
	publisher EventPublisher
	log       *zap.Logger
}

// NewLoadUsecase は新しい LoadUsecase を作成します。publisher は nil でも構いません。
func NewLoadUsecase(store ContractStore, publisher EventPublisher, log *zap.Logger) *LoadUsecase {
	return &LoadUsecase{store: store, publisher: publisher, log: log}
}

// Load はレコードを検証し、バッチ単位でUPSERTします。
// replaceExchange が指定された場合、その取引所の既存行の削除と書き込みを1トランザクションで行います。
// symbol・token・exchange のいずれかが空の行はスキップし、(token, exchange) の重複は後の行を採用します。
func (u *LoadUsecase) Load(ctx context.Context, records []entity.SymbolRecord, replaceExchange string) (LoadResult, error) {
	var res LoadResult

	valid := make([]entity.SymbolRecord, 0, len(records))
	seen := make(map[string]int, len(records))
	for _, r := range records {
		r.Symbol = strings.TrimSpace(r.Symbol)
		r.Token = strings.TrimSpace(r.Token)
		r.Exchange = strings.ToUpper(strings.TrimSpace(r.Exchange))
		if r.Symbol == "" || r.Token == "" || r.Exchange == "" {
			res.Skipped++
			continue
		}
		if r.BrSymbol == "" {
			r.BrSymbol = r.Symbol
		}
		if r.BrExchange == "" {
			r.BrExchange = r.Exchange
		}
		r.ID = 0

		// 1文の UPSERT に同じキーが2回現れると Postgres は失敗する
		key := r.Token + "\x00" + r.Exchange
		if i, ok := seen[key]; ok {
			valid[i] = r
			res.Duplicates++
			continue
		}
		seen[key] = len(valid)
		valid = append(valid, r)
	}

	if replaceExchange = strings.ToUpper(strings.TrimSpace(replaceExchange)); replaceExchange != "" {
		n, err := u.store.ReplaceExchange(ctx, replaceExchange, valid)
		if err != nil {
			return res, fmt.Errorf("failed to replace exchange %s: %w", replaceExchange, err)
		}
		res.Deleted = n
		res.Loaded = len(valid)
	} else {
		for start := 0; start < len(valid); start += loadBatchSize {
			end := min(start+loadBatchSize, len(valid))
			if err := u.store.UpsertBatch(ctx, valid[start:end]); err != nil {
				return res, fmt.Errorf("failed to upsert rows %d-%d: %w", start, end, err)
			}
			res.Loaded = end
		}
	}

	u.log.Info("master contract loaded",
		zap.Int("loaded", res.Loaded),
		zap.Int("skipped", res.Skipped),
		zap.Int("duplicates", res.Duplicates),
		zap.Int64("deleted", res.Deleted),
	)

	if u.publisher != nil {
		payload := map[string]string{
			"status":  "success",
			"message": fmt.Sprintf("Loaded %d symbols", res.Loaded),
		}
		if err := u.publisher.Publish(ctx, EventMasterContract, payload); err != nil {
			// 通知失敗は取り込み結果に影響させない
			u.log.Warn("failed to publish master contract event", zap.Error(err))
		}
	}

	return res, nil
}
