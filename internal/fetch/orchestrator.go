// Package fetch loads batches of independent reads through a RowSource and
// caches the assembled payload per batch fingerprint.
//
// A cached payload is served until its TTL elapses; staleness is checked
// lazily on the next Load and nothing refreshes in the background. Concurrent
// loads of the same batch share a single in-flight fetch.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	studioerrors "github.com/arkilian/studio/internal/errors"
	"github.com/arkilian/studio/internal/events"
	"github.com/arkilian/studio/internal/observability"
	"github.com/arkilian/studio/pkg/types"
)

const (
	// DefaultTTL is how long a fetched payload is served from cache.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxEntries bounds the number of cached batches.
	DefaultMaxEntries = 64
)

// RowSource resolves one read descriptor to rows or an error.
type RowSource interface {
	Read(ctx context.Context, d ReadDescriptor) ([]types.Row, error)
}

// SourceFunc adapts a function to RowSource.
type SourceFunc func(ctx context.Context, d ReadDescriptor) ([]types.Row, error)

// Read calls f.
func (f SourceFunc) Read(ctx context.Context, d ReadDescriptor) ([]types.Row, error) {
	return f(ctx, d)
}

// State is the load state of one batch.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateErrored State = "errored"
)

// ReadResult is the outcome of one read: rows when Err is nil, otherwise the
// failure reason.
type ReadResult struct {
	Collection string
	Rows       []types.Row
	Err        error
}

// OK reports whether the read succeeded.
func (r ReadResult) OK() bool { return r.Err == nil }

// Payload is the assembled result of a batch. Every collection named by the
// batch is present, as an empty slice when it has no rows or its read failed.
// Row slices are shared with the cache and must not be modified.
type Payload struct {
	Collections   map[string][]types.Row
	PartialErrors map[string]error
	Loading       bool
	Err           error
	FetchedAt     time.Time
	Fingerprint   uint64
	// Cached is set when the payload was served without fetching.
	Cached bool
}

// EmptyPayload returns the default payload shape for a batch: every
// collection present and empty.
func EmptyPayload(b Batch) *Payload {
	p := &Payload{
		Collections:   make(map[string][]types.Row, len(b.Reads)),
		PartialErrors: make(map[string]error),
	}
	for _, r := range b.Reads {
		p.Collections[r.Collection] = []types.Row{}
	}
	return p
}

// Rows returns the rows of a collection, or an empty slice.
func (p *Payload) Rows(collection string) []types.Row {
	if rows, ok := p.Collections[collection]; ok {
		return rows
	}
	return []types.Row{}
}

// clone copies the payload's maps so callers cannot alter cached state.
func (p *Payload) clone() *Payload {
	c := *p
	c.Collections = make(map[string][]types.Row, len(p.Collections))
	for k, v := range p.Collections {
		c.Collections[k] = v
	}
	c.PartialErrors = make(map[string]error, len(p.PartialErrors))
	for k, v := range p.PartialErrors {
		c.PartialErrors[k] = v
	}
	return &c
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTTL sets the freshness window. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMaxEntries bounds the number of cached batches.
func WithMaxEntries(n int) Option {
	return func(o *Orchestrator) { o.maxEntries = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStats records cache counters into stats.
func WithStats(stats *observability.CacheStats) Option {
	return func(o *Orchestrator) {
		if stats != nil {
			o.stats = stats
		}
	}
}

// WithEvents publishes fetched, failed and invalidated events on bus.
func WithEvents(bus *events.Bus) Option {
	return func(o *Orchestrator) { o.events = bus }
}

// WithKeepPartialRows keeps the rows of successful reads in the payload of a
// failed batch instead of replacing every collection with an empty slice.
func WithKeepPartialRows(keep bool) Option {
	return func(o *Orchestrator) { o.keepPartial = keep }
}

// Orchestrator fans out batches against a RowSource and caches the results.
// It is safe for concurrent use.
type Orchestrator struct {
	source      RowSource
	ttl         time.Duration
	maxEntries  int
	now         func() time.Time
	logger      *zap.Logger
	stats       *observability.CacheStats
	keepPartial bool
	events      *events.Bus

	cache    *payloadCache
	inflight singleflight.Group

	mu     sync.Mutex
	states map[uint64]State
	// Invalidation generations. A fetch stores its payload only while the
	// generation it started under is still current.
	genSeq uint64
	gens   map[uint64]uint64
	allGen uint64
}

// New creates an orchestrator reading from source.
func New(source RowSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:     source,
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		logger:     zap.NewNop(),
		stats:      &observability.CacheStats{},
		states:     make(map[uint64]State),
		gens:       make(map[uint64]uint64),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cache = newPayloadCache(o.maxEntries)
	return o
}

// TTL returns the freshness window.
func (o *Orchestrator) TTL() time.Duration { return o.ttl }

// Stats returns the cache counters.
func (o *Orchestrator) Stats() *observability.CacheStats { return o.stats }

// Load returns the payload for batch. A fresh cached payload is returned
// without I/O unless forceRefresh is set. Otherwise the batch is fetched, or
// an in-flight fetch of the same batch is joined.
//
// The returned payload is never nil. When the batch fails, the error is also
// set on the payload, PartialErrors names each failed collection and nothing
// is cached. Cancelling ctx stops the wait but not the fetch.
func (o *Orchestrator) Load(ctx context.Context, batch Batch, forceRefresh bool) (*Payload, error) {
	if err := batch.Validate(); err != nil {
		p := EmptyPayload(batch)
		p.Err = err
		return p, err
	}

	fp := batch.Fingerprint()
	if !forceRefresh {
		if p, ok := o.cache.get(fp, o.now(), o.ttl); ok {
			o.stats.Hits.Add(1)
			o.logger.Debug("batch served from cache",
				zap.String("batch", batch.Name),
				zap.String("fingerprint", fingerprintString(fp)))
			c := p.clone()
			c.Cached = true
			return c, nil
		}
	}
	o.stats.Misses.Add(1)

	for {
		gen := o.generation(fp)
		key := fingerprintString(fp) + "/" + strconv.FormatUint(gen, 10)
		leader := false
		ch := o.inflight.DoChan(key, func() (interface{}, error) {
			leader = true
			return o.cachedOrFetch(context.WithoutCancel(ctx), batch, fp, gen, forceRefresh)
		})

		select {
		case res := <-ch:
			p := res.Val.(*Payload).clone()
			if forceRefresh && p.Cached {
				// Joined a flight that answered from cache.
				continue
			}
			if !leader {
				o.stats.Joined.Add(1)
			}
			return p, res.Err
		case <-ctx.Done():
			p := EmptyPayload(batch)
			p.Err = ctx.Err()
			return p, ctx.Err()
		}
	}
}

// cachedOrFetch runs inside a flight. Unless forced, it answers from a cache
// entry stored by a previous flight since the caller's miss.
func (o *Orchestrator) cachedOrFetch(ctx context.Context, batch Batch, fp, gen uint64, forceRefresh bool) (*Payload, error) {
	if !forceRefresh {
		if p, ok := o.cache.get(fp, o.now(), o.ttl); ok {
			c := p.clone()
			c.Cached = true
			return c, nil
		}
	}
	return o.fetch(ctx, batch, fp, gen)
}

// fetch runs every read of the batch concurrently and waits for all of them.
// A failed read never cancels the others.
func (o *Orchestrator) fetch(ctx context.Context, batch Batch, fp, gen uint64) (*Payload, error) {
	o.setState(fp, StateLoading)
	o.stats.Fetches.Add(1)

	loadID := uuid.NewString()
	logger := o.logger.With(
		zap.String("batch", batch.Name),
		zap.String("fingerprint", fingerprintString(fp)),
		zap.String("load_id", loadID),
	)
	start := o.now()
	logger.Debug("batch fetch started", zap.Int("reads", len(batch.Reads)))

	results := make([]ReadResult, len(batch.Reads))
	var g errgroup.Group
	for i, d := range batch.Reads {
		g.Go(func() error {
			results[i] = o.read(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	p := EmptyPayload(batch)
	p.Fingerprint = fp
	var failed []string
	var causes []error
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r.Collection)
			causes = append(causes, fmt.Errorf("%s: %w", r.Collection, r.Err))
			p.PartialErrors[r.Collection] = r.Err
			continue
		}
		if r.Rows != nil {
			p.Collections[r.Collection] = r.Rows
		}
	}

	if len(failed) > 0 {
		if !o.keepPartial {
			for c := range p.Collections {
				p.Collections[c] = []types.Row{}
			}
		}
		err := studioerrors.NewFetchError(studioerrors.CodeBatchFailed,
			fmt.Sprintf("batch %q: %d of %d reads failed (%s)",
				batch.Name, len(failed), len(batch.Reads), strings.Join(failed, ", ")),
			errors.Join(causes...),
		).WithDetails(map[string]interface{}{"collections": failed})
		p.Err = err

		o.stats.Failures.Add(1)
		o.setState(fp, StateErrored)
		o.publish(events.Event{Type: events.BatchFailed, Batch: batch.Name, Fingerprint: fp, Failed: failed})
		logger.Warn("batch fetch failed",
			zap.Strings("failed", failed),
			zap.Duration("duration", o.now().Sub(start)),
			zap.Error(err))
		return p, err
	}

	p.FetchedAt = o.now()
	stored, evicted := o.store(fp, gen, batch.Name, p)
	if evicted > 0 {
		o.stats.Evictions.Add(int64(evicted))
	}
	o.setState(fp, StateReady)
	if !stored {
		logger.Debug("batch invalidated during fetch, payload not cached")
	}
	o.publish(events.Event{Type: events.BatchFetched, Batch: batch.Name, Fingerprint: fp})
	logger.Info("batch fetched",
		zap.Duration("duration", p.FetchedAt.Sub(start)),
		zap.Int("collections", len(p.Collections)))
	return p, nil
}

// store caches p unless fp was invalidated after generation gen was read.
func (o *Orchestrator) store(fp, gen uint64, batch string, p *Payload) (stored bool, evicted int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generationLocked(fp) != gen {
		return false, 0
	}
	return true, o.cache.put(fp, batch, p.FetchedAt, p)
}

func (o *Orchestrator) generation(fp uint64) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generationLocked(fp)
}

func (o *Orchestrator) generationLocked(fp uint64) uint64 {
	return max(o.gens[fp], o.allGen)
}

// read performs one read, turning a panic in the source into a failed result.
func (o *Orchestrator) read(ctx context.Context, d ReadDescriptor) (res ReadResult) {
	res.Collection = d.Collection
	defer func() {
		if r := recover(); r != nil {
			res.Rows = nil
			res.Err = studioerrors.NewInternalError(
				fmt.Sprintf("read of %q panicked: %v", d.Collection, r), nil)
		}
	}()

	rows, err := o.source.Read(ctx, d)
	if err != nil {
		res.Err = err
		return res
	}
	res.Rows = rows
	return res
}

// Invalidate drops the cached payload of batch; the next Load fetches. A fetch
// already in flight still answers its callers but its payload is not cached.
func (o *Orchestrator) Invalidate(batch Batch) {
	fp := batch.Fingerprint()
	o.mu.Lock()
	o.genSeq++
	o.gens[fp] = o.genSeq
	removed := o.cache.remove(fp)
	o.mu.Unlock()

	if removed {
		o.logger.Debug("batch invalidated",
			zap.String("batch", batch.Name),
			zap.String("fingerprint", fingerprintString(fp)))
		o.publish(events.Event{Type: events.BatchInvalidated, Batch: batch.Name, Fingerprint: fp})
	}
}

func (o *Orchestrator) publish(ev events.Event) {
	if o.events == nil {
		return
	}
	ev.Timestamp = o.now()
	o.events.Publish(ev)
}

// InvalidateAll drops every cached payload and publishes an invalidation
// event for each.
func (o *Orchestrator) InvalidateAll() {
	o.mu.Lock()
	o.genSeq++
	o.allGen = o.genSeq
	dropped := o.cache.clear()
	o.mu.Unlock()

	o.logger.Debug("all batches invalidated", zap.Int("dropped", len(dropped)))
	for _, e := range dropped {
		o.publish(events.Event{Type: events.BatchInvalidated, Batch: e.batch, Fingerprint: e.fingerprint})
	}
}

// State returns the load state of batch.
func (o *Orchestrator) State(batch Batch) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.states[batch.Fingerprint()]; ok {
		return s
	}
	return StateIdle
}

// CachedBatches returns the number of cached payloads, fresh or not.
func (o *Orchestrator) CachedBatches() int {
	return o.cache.len()
}

func (o *Orchestrator) setState(fp uint64, s State) {
	o.mu.Lock()
	o.states[fp] = s
	o.mu.Unlock()
}

func fingerprintString(fp uint64) string {
	return strconv.FormatUint(fp, 16)
}
