package idempotency

import (
	"log"
	"sync"
	"time"
)

// Record statuses. Anything else found in the store is treated as corrupted
// and reset on the next claim.
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
)

const (
	DefaultProcessingTimeout = 5 * time.Minute
	DefaultResultRetention   = 25 * time.Hour
)

// Record tracks the lifecycle of one idempotency key.
type Record struct {
	Key         string
	Status      string
	Result      any
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Claim is the outcome of claiming a key. When Duplicate is true and
// ExistingResult is nil, the original request is still in flight and the
// caller must not retry synchronously.
type Claim struct {
	Duplicate      bool
	ExistingResult any
	Record         Record
}

// Config configures a Ledger.
type Config struct {
	ProcessingTimeout time.Duration
	ResultRetention   time.Duration
	Now               func() time.Time
	Logf              func(format string, args ...any)
}

// Ledger is a process-scoped idempotency key store. It is created at process
// start and never persisted across restarts; each process instance keeps an
// independent ledger.
type Ledger struct {
	mu                sync.Mutex
	records           map[string]*Record
	processingTimeout time.Duration
	resultRetention   time.Duration
	now               func() time.Time
	logf              func(format string, args ...any)
}

// New constructs a Ledger with sane defaults.
func New(cfg Config) *Ledger {
	processingTimeout := cfg.ProcessingTimeout
	if processingTimeout <= 0 {
		processingTimeout = DefaultProcessingTimeout
	}
	resultRetention := cfg.ResultRetention
	if resultRetention <= 0 {
		resultRetention = DefaultResultRetention
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Ledger{
		records:           make(map[string]*Record),
		processingTimeout: processingTimeout,
		resultRetention:   resultRetention,
		now:               now,
		logf:              logf,
	}
}

// Claim registers the key as in-flight, or reports it as a duplicate of an
// earlier request. Exactly one of any number of concurrent claims for a fresh
// key wins. A PROCESSING record older than the processing timeout and a
// COMPLETED record past the retention window are both reclaimed in place.
func (l *Ledger) Claim(key string) Claim {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[key]
	if !ok {
		rec = &Record{Key: key, Status: StatusProcessing, CreatedAt: now}
		l.records[key] = rec
		return Claim{Record: *rec}
	}

	switch rec.Status {
	case StatusProcessing:
		if now.Sub(rec.CreatedAt) > l.processingTimeout {
			l.logf("[idempotency] processing timed out, reclaiming: key=%s age=%v", key, now.Sub(rec.CreatedAt))
			l.reset(rec, now)
			return Claim{Record: *rec}
		}
		return Claim{Duplicate: true, Record: *rec}
	case StatusCompleted:
		if now.Sub(rec.CompletedAt) > l.resultRetention {
			l.logf("[idempotency] stored result expired, reclaiming: key=%s", key)
			l.reset(rec, now)
			return Claim{Record: *rec}
		}
		return Claim{Duplicate: true, ExistingResult: rec.Result, Record: *rec}
	default:
		l.logf("[idempotency] unknown status %q, resetting: key=%s", rec.Status, key)
		l.reset(rec, now)
		return Claim{Record: *rec}
	}
}

// Commit stores the result for a claimed key and marks it COMPLETED. A commit
// for a key that no longer exists is ignored: the record may have been
// reclaimed by a timeout reset racing this commit.
func (l *Ledger) Commit(key string, result any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		l.logf("[idempotency] commit for unknown key, ignoring: key=%s", key)
		return
	}
	rec.Status = StatusCompleted
	rec.Result = result
	rec.CompletedAt = l.now()
}

// Fail removes the record so an immediate retry with the same key is treated
// as brand-new. No-op for unknown keys.
func (l *Ledger) Fail(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, key)
}

func (l *Ledger) reset(rec *Record, now time.Time) {
	rec.Status = StatusProcessing
	rec.Result = nil
	rec.CreatedAt = now
	rec.CompletedAt = time.Time{}
}
