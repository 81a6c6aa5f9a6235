// Package pipeline composes the subtitle flow: cache check, provider fetch,
// track selection, parsing, batch planning, rate-limited translation and
// incremental cache persistence.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/sublate/sublate/internal/cache"
	"github.com/sublate/sublate/internal/jobs"
	"github.com/sublate/sublate/internal/ratelimit"
	"github.com/sublate/sublate/internal/schedule"
	"github.com/sublate/sublate/internal/subtitle"
	"github.com/sublate/sublate/internal/track"
	"github.com/sublate/sublate/pkg/log"
)

// SearchRequest describes one provider lookup.
type SearchRequest struct {
	ContentType string
	ContentID   string
	Season      int
	Episode     int
	Languages   string
}

// Provider is the subtitle-search collaborator.
type Provider interface {
	Search(ctx context.Context, req SearchRequest) ([]track.Candidate, error)
	Download(ctx context.Context, fileID int) (string, error)
}

// Translator is the translation-backend collaborator.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// TranslatorFactory builds a translator bound to one target language.
type TranslatorFactory func(targetLang string) Translator

// Request identifies one subtitle-translation request.
type Request struct {
	Identity      string
	ContentType   string
	ContentID     string
	Season        int
	Episode       int
	ReferenceName string
	StartOffset   time.Duration
	TargetLang    string
}

// CacheKey derives the deterministic cache key for the request.
func (r Request) CacheKey() string {
	key := fmt.Sprintf("%s-%s-%s", r.Identity, r.ContentType, r.ContentID)
	if r.Season > 0 || r.Episode > 0 {
		key = fmt.Sprintf("%s-%d-%d", key, r.Season, r.Episode)
	}
	return key + "-" + r.TargetLang
}

// Options tune batching and provider search.
type Options struct {
	Buffer          time.Duration
	BatchCapacity   int
	SourceLanguages string
}

func (o Options) withDefaults() Options {
	if o.Buffer <= 0 {
		o.Buffer = schedule.DefaultBuffer
	}
	if o.BatchCapacity <= 0 {
		o.BatchCapacity = schedule.DefaultCapacity
	}
	if o.SourceLanguages == "" {
		o.SourceLanguages = "en"
	}
	return o
}

// Pipeline owns the in-flight entry list for one request and drives all
// collaborators. Stores are injected; the pipeline keeps no ambient global
// state.
type Pipeline struct {
	provider    Provider
	translators TranslatorFactory
	cache       *cache.Store
	limiter     *ratelimit.Limiter
	queue       *jobs.Queue
	opts        Options

	flight singleflight.Group
}

func New(
	provider Provider,
	translators TranslatorFactory,
	cacheStore *cache.Store,
	limiter *ratelimit.Limiter,
	opts Options,
) *Pipeline {
	return &Pipeline{
		provider:    provider,
		translators: translators,
		cache:       cacheStore,
		limiter:     limiter,
		opts:        opts.withDefaults(),
	}
}

// AttachQueue wires the continuation queue. Without one, remaining batches
// are translated inline on a plain goroutine (tests mostly run this way).
func (p *Pipeline) AttachQueue(q *jobs.Queue) {
	p.queue = q
}

// Subtitles serves one request: cached payload on hit, otherwise the track is
// fetched and its priority window translated before returning. The rest of
// the track continues in the background; callers polling again see the
// latest partial progress from the cache.
func (p *Pipeline) Subtitles(ctx context.Context, req Request) (*cache.Record, error) {
	key := req.CacheKey()
	if rec, ok := p.cache.Get(key); ok {
		return rec, nil
	}

	// concurrent identical requests collapse into one pipeline run
	v, err, _ := p.flight.Do(key, func() (any, error) {
		return p.fetchAndTranslate(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*cache.Record), nil
}

func (p *Pipeline) fetchAndTranslate(ctx context.Context, req Request) (*cache.Record, error) {
	key := req.CacheKey()

	entries, err := p.fetchEntries(ctx, req)
	if err != nil {
		return nil, err
	}

	if src := subtitle.DetectLanguage(entries); sameLanguage(src, req.TargetLang) {
		log.Info("Source language %s already matches target for %s, skipping translation", src, key)
		for i := range entries {
			entries[i].TranslatedText = entries[i].Text
		}
		rec := recordFrom(entries)
		if err := p.cache.Put(key, rec); err != nil {
			return nil, WrapError(err, ErrCache, "persist untranslated track")
		}
		return rec, nil
	}

	plan := schedule.Plan(entries, req.StartOffset, p.opts.Buffer, p.opts.BatchCapacity)

	translator := p.translators(req.TargetLang)
	if err := p.translateBatch(ctx, req.Identity, translator, plan[0]); err != nil {
		return nil, err
	}

	rec := recordFrom(entries)
	if err := p.cache.Put(key, rec); err != nil {
		return nil, WrapError(err, ErrCache, "persist priority batch")
	}

	if countPending(plan[1:]) > 0 {
		p.scheduleContinuation(req)
	}
	return rec, nil
}

// RunContinuation is the queue executor for background batches. It rebuilds
// the entry list from the provider, folds in translations already persisted,
// and works through the remaining batches one at a time, re-persisting the
// whole track after each batch so concurrent readers observe monotonically
// more complete records.
func (p *Pipeline) RunContinuation(ctx context.Context, job *jobs.ContinuationJob) error {
	req := Request{
		Identity:      job.Payload.Identity,
		ContentType:   job.Payload.ContentType,
		ContentID:     job.Payload.ContentID,
		Season:        job.Payload.Season,
		Episode:       job.Payload.Episode,
		ReferenceName: job.Payload.ReferenceName,
		StartOffset:   time.Duration(job.Payload.StartOffsetMS) * time.Millisecond,
		TargetLang:    job.Payload.TargetLang,
	}
	key := req.CacheKey()

	entries, err := p.fetchEntries(ctx, req)
	if err != nil {
		return err
	}
	if rec, ok := p.cache.Get(key); ok {
		mergeCached(entries, rec)
	}

	translator := p.translators(req.TargetLang)
	plan := schedule.Plan(entries, req.StartOffset, p.opts.Buffer, p.opts.BatchCapacity)
	for _, batch := range plan {
		if countPendingBatch(batch) == 0 {
			continue
		}
		if err := p.translateBatch(ctx, req.Identity, translator, batch); err != nil {
			return err
		}
		if err := p.cache.Put(key, recordFrom(entries)); err != nil {
			return WrapError(err, ErrCache, "persist batch progress")
		}
	}
	return nil
}

// translateBatch translates every untranslated entry of one batch under a
// single rate-limit admission, dispatching the calls concurrently and joining
// before returning. A single entry's failure keeps the source text and never
// fails the batch; only context cancellation propagates.
func (p *Pipeline) translateBatch(
	ctx context.Context,
	identity string,
	translator Translator,
	batch schedule.Batch,
) error {
	pending := make([]*subtitle.Entry, 0, len(batch))
	for _, entry := range batch {
		if !entry.Translated() {
			pending = append(pending, entry)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	if err := p.limiter.Acquire(ctx, identity, len(pending)); err != nil {
		return err
	}

	g := new(errgroup.Group)
	for _, entry := range pending {
		g.Go(func() error {
			translated, err := translator.Translate(ctx, entry.Text)
			if err != nil {
				log.Warn("Translation degraded, keeping source text: %v", err)
				return nil
			}
			entry.TranslatedText = translated
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

func (p *Pipeline) fetchEntries(ctx context.Context, req Request) ([]subtitle.Entry, error) {
	candidates, err := p.provider.Search(ctx, SearchRequest{
		ContentType: req.ContentType,
		ContentID:   req.ContentID,
		Season:      req.Season,
		Episode:     req.Episode,
		Languages:   p.opts.SourceLanguages,
	})
	if err != nil {
		return nil, WrapError(err, ErrUpstream, "subtitle search failed")
	}
	if len(candidates) == 0 {
		return nil, NewError(ErrUpstream, "provider returned no subtitle candidates")
	}

	selected, err := track.Select(candidates, req.ReferenceName)
	if err != nil {
		return nil, WrapError(err, ErrNotFound, "track selection failed")
	}

	raw, err := p.provider.Download(ctx, selected.FileID)
	if err != nil {
		return nil, WrapError(err, ErrUpstream, "subtitle download failed")
	}

	entries := subtitle.Parse(raw)
	if len(entries) == 0 {
		return nil, NewError(ErrUpstream, "subtitle track contained no usable entries")
	}
	return entries, nil
}

// scheduleContinuation hands the remaining batches to the supervised queue.
// The queue dedupes by cache key, so a poll racing the background work does
// not spawn a second continuation.
func (p *Pipeline) scheduleContinuation(req Request) {
	if p.queue == nil {
		go func() {
			job := &jobs.ContinuationJob{Payload: payloadFrom(req)}
			if err := p.RunContinuation(context.Background(), job); err != nil {
				log.Error("Inline continuation for %s failed: %v", req.CacheKey(), err)
			}
		}()
		return
	}

	p.queue.Enqueue(jobs.EnqueueRequest{
		Source:    "pipeline",
		DedupeKey: req.CacheKey(),
		Payload:   payloadFrom(req),
	})
}

func payloadFrom(req Request) jobs.Payload {
	return jobs.Payload{
		Identity:      req.Identity,
		ContentType:   req.ContentType,
		ContentID:     req.ContentID,
		Season:        req.Season,
		Episode:       req.Episode,
		ReferenceName: req.ReferenceName,
		StartOffsetMS: req.StartOffset.Milliseconds(),
		TargetLang:    req.TargetLang,
	}
}

func recordFrom(entries []subtitle.Entry) *cache.Record {
	subtitles := make([]cache.RecordEntry, len(entries))
	for i, entry := range entries {
		subtitles[i] = cache.RecordEntry{
			Start: entry.StartMillis(),
			Text:  entry.DisplayText(),
		}
	}
	return &cache.Record{Subtitles: subtitles}
}

// mergeCached folds translations persisted by an earlier run back onto fresh
// entries, matched by start offset. A cached text equal to the source text
// is not a translation and stays pending.
func mergeCached(entries []subtitle.Entry, rec *cache.Record) {
	byStart := make(map[int64]string, len(rec.Subtitles))
	for _, re := range rec.Subtitles {
		byStart[re.Start] = re.Text
	}
	for i := range entries {
		cached, ok := byStart[entries[i].StartMillis()]
		if ok && cached != entries[i].Text {
			entries[i].TranslatedText = cached
		}
	}
}

func countPendingBatch(batch schedule.Batch) int {
	n := 0
	for _, entry := range batch {
		if !entry.Translated() {
			n++
		}
	}
	return n
}

func countPending(batches []schedule.Batch) int {
	n := 0
	for _, batch := range batches {
		n += countPendingBatch(batch)
	}
	return n
}

// sameLanguage compares a detected source tag against the requested target
// code by language base, ignoring region and script.
func sameLanguage(detected language.Tag, target string) bool {
	if detected == language.Und {
		return false
	}
	targetTag, err := language.Parse(target)
	if err != nil {
		return false
	}
	detectedBase, _ := detected.Base()
	targetBase, _ := targetTag.Base()
	return detectedBase == targetBase
}
