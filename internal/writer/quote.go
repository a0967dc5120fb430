package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/market-stream/internal/metrics"
	"github.com/rickgao/market-stream/internal/model"
)

// QuoteWriter accepts quotes from the polling driver and appends them to the quotes table.
type QuoteWriter struct {
	cfg     WriterConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Input from the polling driver
	input chan model.Quote

	// Database
	db BatchSender

	// Batching
	batch       []quoteRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats WriterMetrics
	now   func() time.Time
}

// NewQuoteWriter creates a new QuoteWriter. m may be nil.
func NewQuoteWriter(cfg WriterConfig, db BatchSender, m *metrics.Metrics, logger *slog.Logger) *QuoteWriter {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	return &QuoteWriter{
		cfg:     cfg,
		input:   make(chan model.Quote, cfg.BufferSize),
		db:      db,
		metrics: m,
		logger:  logger,
		batch:   make([]quoteRow, 0, cfg.BatchSize),
		ctx:     context.Background(),
		now:     time.Now,
	}
}

// Offer queues a quote without blocking. Returns false if the buffer is full.
func (w *QuoteWriter) Offer(q model.Quote) bool {
	select {
	case w.input <- q:
		return true
	default:
		w.batchMu.Lock()
		w.stats.Dropped++
		w.batchMu.Unlock()
		return false
	}
}

// Start begins consuming quotes and writing to the database.
func (w *QuoteWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("quote writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued quotes, flushes, and shuts down.
func (w *QuoteWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping quote writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("quote writer stop timed out")
		return ctx.Err()
	}

	// Final drain and flush on the caller's context; ours is cancelled.
	w.drain()
	w.flushWith(ctx)

	w.logger.Info("quote writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *QuoteWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop reads from the input channel and accumulates batches.
func (w *QuoteWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case q := <-w.input:
			w.handleQuote(q)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *QuoteWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// drain moves everything still queued into the batch.
func (w *QuoteWriter) drain() {
	for {
		select {
		case q := <-w.input:
			w.batchMu.Lock()
			w.batch = append(w.batch, w.transform(q))
			w.batchMu.Unlock()
		default:
			return
		}
	}
}

// handleQuote transforms and adds a quote to the batch.
func (w *QuoteWriter) handleQuote(q model.Quote) {
	row := w.transform(q)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a quote to a quoteRow. Unparseable timestamps fall back to now.
func (w *QuoteWriter) transform(q model.Quote) quoteRow {
	ts, err := time.Parse(time.RFC3339Nano, q.Timestamp)
	if err != nil {
		ts = w.now()
	}
	return quoteRow{
		Ts:            ts.UTC(),
		Symbol:        q.Symbol,
		Price:         q.Price,
		Open:          q.Open,
		High:          q.High,
		Low:           q.Low,
		Volume:        q.Volume,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		MarketCap:     q.MarketCap,
		PERatio:       q.PERatio,
	}
}

func (w *QuoteWriter) flush() {
	w.flushWith(w.ctx)
}

// flushWith writes the current batch to the database.
func (w *QuoteWriter) flushWith(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]quoteRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.metrics.WriterError()
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	inserted := len(batch) - conflicts
	w.metrics.QuotesWritten(inserted)

	w.batchMu.Lock()
	w.stats.Inserts += int64(inserted)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed quotes",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *QuoteWriter) batchInsert(ctx context.Context, rows []quoteRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO quotes (ts, symbol, price, open, high, low, volume, change, change_percent, market_cap, pe_ratio)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (symbol, ts) DO NOTHING
		`, r.Ts, r.Symbol, r.Price, r.Open, r.High, r.Low, r.Volume, r.Change, r.ChangePercent, r.MarketCap, r.PERatio)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
