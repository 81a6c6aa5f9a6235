package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublate/sublate/internal/cache"
	"github.com/sublate/sublate/internal/jobs"
	"github.com/sublate/sublate/internal/ratelimit"
	"github.com/sublate/sublate/internal/subtitle"
	"github.com/sublate/sublate/internal/track"
)

type fakeProvider struct {
	mu         sync.Mutex
	searches   int
	downloads  int
	candidates []track.Candidate
	content    string
	searchErr  error
	delay      time.Duration
}

func (f *fakeProvider) Search(_ context.Context, _ SearchRequest) ([]track.Candidate, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.candidates, nil
}

func (f *fakeProvider) Download(_ context.Context, _ int) (string, error) {
	f.mu.Lock()
	f.downloads++
	f.mu.Unlock()
	return f.content, nil
}

func (f *fakeProvider) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

type fakeTranslator struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func (f *fakeTranslator) Translate(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail[text] {
		return "", fmt.Errorf("backend rejected %q", text)
	}
	return "[es] " + text, nil
}

func (f *fakeTranslator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// srtTrack builds SRT content with one Russian line per given start offset,
// so language detection never matches an "es" target.
func srtTrack(offsets ...time.Duration) string {
	var sb strings.Builder
	for i, off := range offsets {
		h := int(off.Hours())
		m := int(off.Minutes()) % 60
		s := int(off.Seconds()) % 60
		fmt.Fprintf(&sb, "%d\n%02d:%02d:%02d,000 --> %02d:%02d:%02d,500\nстрока номер %d\n\n",
			i+1, h, m, s, h, m, s, i)
	}
	return sb.String()
}

func line(i int) string {
	return fmt.Sprintf("строка номер %d", i)
}

func defaultCandidates() []track.Candidate {
	return []track.Candidate{{ID: "a", FileID: 42, DownloadCount: 100}}
}

func newTestPipeline(t *testing.T, provider Provider, translator Translator) (*Pipeline, *cache.Store) {
	t.Helper()
	store, err := cache.NewStore(t.TempDir(), cache.DefaultTTL)
	require.NoError(t, err)

	p := New(
		provider,
		func(string) Translator { return translator },
		store,
		ratelimit.NewLimiter(10000, time.Minute),
		Options{BatchCapacity: 2},
	)
	return p, store
}

func testRequest() Request {
	return Request{
		Identity:    "u1",
		ContentType: "movie",
		ContentID:   "tt0111161",
		TargetLang:  "es",
	}
}

func TestSubtitles_CacheHitSkipsProvider(t *testing.T) {
	provider := &fakeProvider{}
	p, store := newTestPipeline(t, provider, &fakeTranslator{})

	req := testRequest()
	require.NoError(t, store.Put(req.CacheKey(), &cache.Record{
		Subtitles: []cache.RecordEntry{{Start: 0, Text: "cached"}},
	}))

	rec, err := p.Subtitles(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "cached", rec.Subtitles[0].Text)
	assert.Zero(t, provider.searchCount())
}

func TestSubtitles_TranslatesPriorityWindowSynchronously(t *testing.T) {
	provider := &fakeProvider{
		candidates: defaultCandidates(),
		content:    srtTrack(0, 5*time.Second, 130*time.Second, 140*time.Second, 150*time.Second),
	}
	p, store := newTestPipeline(t, provider, &fakeTranslator{})

	req := testRequest()
	rec, err := p.Subtitles(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, rec.Subtitles, 5)

	// entries inside the two-minute window come back translated
	assert.Equal(t, "[es] "+line(0), rec.Subtitles[0].Text)
	assert.Equal(t, "[es] "+line(1), rec.Subtitles[1].Text)

	// the remainder finishes in the background and lands in the cache
	require.Eventually(t, func() bool {
		got, ok := store.Get(req.CacheKey())
		if !ok {
			return false
		}
		for _, sub := range got.Subtitles {
			if !strings.HasPrefix(sub.Text, "[es] ") {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSubtitles_UpstreamFailureNothingCached(t *testing.T) {
	provider := &fakeProvider{searchErr: fmt.Errorf("503 from provider")}
	p, store := newTestPipeline(t, provider, &fakeTranslator{})

	req := testRequest()
	_, err := p.Subtitles(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrUpstream))

	_, ok := store.Get(req.CacheKey())
	assert.False(t, ok)
}

func TestSubtitles_EmptyCandidateSetIsUpstream(t *testing.T) {
	provider := &fakeProvider{candidates: nil}
	p, _ := newTestPipeline(t, provider, &fakeTranslator{})

	_, err := p.Subtitles(context.Background(), testRequest())
	assert.True(t, IsErrorType(err, ErrUpstream))
}

func TestSubtitles_NoViableTrackIsNotFound(t *testing.T) {
	provider := &fakeProvider{
		candidates: []track.Candidate{{ID: "a", DownloadCount: 10}}, // no file id
	}
	p, _ := newTestPipeline(t, provider, &fakeTranslator{})

	_, err := p.Subtitles(context.Background(), testRequest())
	assert.True(t, IsErrorType(err, ErrNotFound))
}

func TestSubtitles_EntryFailureKeepsSourceText(t *testing.T) {
	provider := &fakeProvider{
		candidates: defaultCandidates(),
		content:    srtTrack(0, 5*time.Second),
	}
	translator := &fakeTranslator{fail: map[string]bool{line(0): true}}
	p, _ := newTestPipeline(t, provider, translator)

	rec, err := p.Subtitles(context.Background(), testRequest())
	require.NoError(t, err, "a single entry failure must not fail the request")
	require.Len(t, rec.Subtitles, 2)
	assert.Equal(t, line(0), rec.Subtitles[0].Text)
	assert.Equal(t, "[es] "+line(1), rec.Subtitles[1].Text)
}

func TestSubtitles_SameLanguageSkipsTranslation(t *testing.T) {
	provider := &fakeProvider{
		candidates: defaultCandidates(),
		content:    "1\n00:00:01,000 --> 00:00:02,000\nGood morning everyone\n\n2\n00:00:03,000 --> 00:00:04,000\nThe weather is lovely today\n\n",
	}
	translator := &fakeTranslator{}
	p, _ := newTestPipeline(t, provider, translator)

	req := testRequest()
	req.TargetLang = "en"
	rec, err := p.Subtitles(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Good morning everyone", rec.Subtitles[0].Text)
	assert.Zero(t, translator.callCount())
}

func TestSubtitles_ConcurrentRequestsCollapse(t *testing.T) {
	provider := &fakeProvider{
		candidates: defaultCandidates(),
		content:    srtTrack(0),
		delay:      50 * time.Millisecond,
	}
	p, _ := newTestPipeline(t, provider, &fakeTranslator{})

	var wg sync.WaitGroup
	var failures atomic.Int32
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Subtitles(context.Background(), testRequest()); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, provider.searchCount())
}

func TestRunContinuation_ResumesFromPartialRecord(t *testing.T) {
	provider := &fakeProvider{
		candidates: defaultCandidates(),
		content:    srtTrack(0, 5*time.Second, 130*time.Second, 140*time.Second),
	}
	translator := &fakeTranslator{}
	p, store := newTestPipeline(t, provider, translator)

	req := testRequest()
	// partial record: first two entries already translated
	require.NoError(t, store.Put(req.CacheKey(), &cache.Record{
		Subtitles: []cache.RecordEntry{
			{Start: 0, Text: "[es] " + line(0)},
			{Start: 5000, Text: "[es] " + line(1)},
			{Start: 130000, Text: line(2)},
			{Start: 140000, Text: line(3)},
		},
	}))

	job := &jobs.ContinuationJob{Payload: payloadFrom(req)}
	require.NoError(t, p.RunContinuation(context.Background(), job))

	assert.Equal(t, 2, translator.callCount(), "only untranslated entries are retranslated")

	got, ok := store.Get(req.CacheKey())
	require.True(t, ok)
	for _, sub := range got.Subtitles {
		assert.True(t, strings.HasPrefix(sub.Text, "[es] "), "entry %q still untranslated", sub.Text)
	}
}

func TestMergeCached(t *testing.T) {
	entries := []subtitle.Entry{
		{Start: 0, Text: "uno"},
		{Start: 5 * time.Second, Text: "dos"},
	}
	mergeCached(entries, &cache.Record{Subtitles: []cache.RecordEntry{
		{Start: 0, Text: "one"},
		{Start: 5000, Text: "dos"}, // same as source: not a translation
	}})

	assert.Equal(t, "one", entries[0].TranslatedText)
	assert.Empty(t, entries[1].TranslatedText)
}

func TestRequest_CacheKey(t *testing.T) {
	movie := Request{Identity: "u1", ContentType: "movie", ContentID: "tt1", TargetLang: "es"}
	episode := Request{Identity: "u1", ContentType: "series", ContentID: "tt1", Season: 1, Episode: 2, TargetLang: "es"}

	assert.Equal(t, "u1-movie-tt1-es", movie.CacheKey())
	assert.Equal(t, "u1-series-tt1-1-2-es", episode.CacheKey())
	assert.NotEqual(t, movie.CacheKey(), episode.CacheKey())
}
