// Package usecase はAPIリクエストログの非同期書き込みを実装します。
package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"brokerdesk/internal/feature/apilog/domain/entity"
)

// DefaultQueueSize は書き込みキューの既定の長さです。
const DefaultQueueSize = 1024

// writeTimeout は1件の保存に許す時間です。
const writeTimeout = 5 * time.Second

// Repository はAPIログの永続化層を抽象化します。
type Repository interface {
	Create(ctx context.Context, log *entity.APILog) error
}

// Writer はAPIログを有界チャネル経由で1つのgoroutineから保存します。
// キューが満杯のときは記録を破棄し、リクエスト処理をブロックしません。
type Writer struct {
	repo    Repository
	queue   chan entity.APILog
	log     *zap.Logger
	wg      sync.WaitGroup
	once    sync.Once
	closeMu sync.RWMutex
	closed  bool
}

// NewWriter はWriterを生成します。queueSize が0以下なら DefaultQueueSize を使います。
// Start を呼ぶまで保存は行われません。
func NewWriter(repo Repository, queueSize int, log *zap.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Writer{
		repo:  repo,
		queue: make(chan entity.APILog, queueSize),
		log:   log,
	}
}

// Start はキューを処理するgoroutineを起動します。
func (w *Writer) Start() {
	w.once.Do(func() {
		w.wg.Add(1)
		go w.run()
	})
}

func (w *Writer) run() {
	defer w.wg.Done()
	for rec := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := w.repo.Create(ctx, &rec); err != nil {
			w.log.Warn("failed to write api log", zap.String("path", rec.Path), zap.Error(err))
		}
		cancel()
	}
}

// Enqueue はrecをキューに積みます。満杯または停止済みの場合は破棄してfalseを返します。
func (w *Writer) Enqueue(rec entity.APILog) bool {
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.queue <- rec:
		return true
	default:
		w.log.Warn("api log queue full, dropping record", zap.String("path", rec.Path))
		return false
	}
}

// Close は新規の受け付けを止め、キューに残った記録を保存し終えるまで待ちます。
// ctx が先に終了した場合は ctx.Err() を返します。
func (w *Writer) Close(ctx context.Context) error {
	w.closeMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.closeMu.Unlock()

	// Start 前に閉じた場合はここで捨てる
	w.once.Do(func() {})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
