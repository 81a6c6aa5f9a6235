package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublate/sublate/internal/cache"
	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/pipeline"
	"github.com/sublate/sublate/internal/ratelimit"
	"github.com/sublate/sublate/internal/track"
)

type stubProvider struct {
	candidates []track.Candidate
	content    string
	searchErr  error
}

func (p *stubProvider) Search(_ context.Context, _ pipeline.SearchRequest) ([]track.Candidate, error) {
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	return p.candidates, nil
}

func (p *stubProvider) Download(_ context.Context, _ int) (string, error) {
	return p.content, nil
}

type stubTranslator struct{ lang string }

func (t stubTranslator) Translate(_ context.Context, text string) (string, error) {
	return "[" + t.lang + "] " + text, nil
}

func testServer(t *testing.T, p pipeline.Provider) *Server {
	t.Helper()
	store, err := cache.NewStore(t.TempDir(), cache.DefaultTTL)
	require.NoError(t, err)
	pl := pipeline.New(
		p,
		func(lang string) pipeline.Translator { return stubTranslator{lang: lang} },
		store,
		ratelimit.NewLimiter(100, time.Minute),
		pipeline.Options{},
	)
	return NewServer(pl, WithVersion("0.9.0"))
}

func sampleSRT(lines int) string {
	var b strings.Builder
	for i := 0; i < lines; i++ {
		start := i * 2
		fmt.Fprintf(&b, "%d\n00:00:%02d,000 --> 00:00:%02d,500\nстрока номер %d\n\n", i+1, start, start+1, i+1)
	}
	return b.String()
}

func testToken(t *testing.T) string {
	t.Helper()
	return config.UserConfig{Key: "k-123", Lang: "es"}.Encode()
}

func TestServer_Health(t *testing.T) {
	srv := testServer(t, &stubProvider{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Manifest(t *testing.T) {
	srv := testServer(t, &stubProvider{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/manifest.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var m manifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "org.sublate.subtitles", m.ID)
	assert.Equal(t, "0.9.0", m.Version)
	assert.Equal(t, []string{"subtitles"}, m.Resources)
	assert.Equal(t, []string{"movie", "series"}, m.Types)
	assert.Equal(t, []string{"tt"}, m.IDPrefixes)
}

func TestServer_Subtitles(t *testing.T) {
	provider := &stubProvider{
		candidates: []track.Candidate{{ID: "1", FileID: 11, FileName: "film.srt", DownloadCount: 5}},
		content:    sampleSRT(3),
	}
	srv := testServer(t, provider)

	path := fmt.Sprintf("/%s/subtitles/movie/tt0111161.json", testToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body cache.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Subtitles, 3)
	assert.Equal(t, "[es] строка номер 1", body.Subtitles[0].Text)
	assert.Equal(t, int64(0), body.Subtitles[0].Start)
}

func TestServer_SubtitlesSeriesID(t *testing.T) {
	provider := &stubProvider{
		candidates: []track.Candidate{{ID: "1", FileID: 11, DownloadCount: 1}},
		content:    sampleSRT(1),
	}
	srv := testServer(t, provider)

	path := fmt.Sprintf("/%s/subtitles/series/tt0903747:2:5.json", testToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_SubtitlesBadToken(t *testing.T) {
	srv := testServer(t, &stubProvider{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/not-base64!/subtitles/movie/tt1.json", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubtitlesBadType(t *testing.T) {
	srv := testServer(t, &stubProvider{})

	path := fmt.Sprintf("/%s/subtitles/channel/tt1.json", testToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubtitlesUpstreamFailure(t *testing.T) {
	srv := testServer(t, &stubProvider{searchErr: fmt.Errorf("provider down")})

	path := fmt.Sprintf("/%s/subtitles/movie/tt1.json", testToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_SubtitlesNoUsableTrack(t *testing.T) {
	srv := testServer(t, &stubProvider{
		candidates: []track.Candidate{{ID: "1", DownloadCount: 3}}, // no file attached
	})

	path := fmt.Sprintf("/%s/subtitles/movie/tt1.json", testToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SRT(t *testing.T) {
	provider := &stubProvider{
		candidates: []track.Candidate{{ID: "1", FileID: 11, DownloadCount: 1}},
		content:    sampleSRT(2),
	}
	srv := testServer(t, provider)

	path := fmt.Sprintf("/%s/srt/movie/tt1", testToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "x-subrip")
	assert.Contains(t, rec.Body.String(), "[es] строка номер 1")
	assert.Contains(t, rec.Body.String(), "-->")
}

func TestServer_ConfigureRedirect(t *testing.T) {
	srv := testServer(t, &stubProvider{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/configure", rec.Header().Get("Location"))
}

func TestServer_ConfigurePage(t *testing.T) {
	srv := testServer(t, &stubProvider{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/configure", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Spanish")
	assert.Contains(t, rec.Body.String(), "0.9.0")
}

func TestSplitVideoID(t *testing.T) {
	id, season, episode, err := splitVideoID("tt0111161")
	require.NoError(t, err)
	assert.Equal(t, "tt0111161", id)
	assert.Zero(t, season)
	assert.Zero(t, episode)

	id, season, episode, err = splitVideoID("tt0903747:2:5")
	require.NoError(t, err)
	assert.Equal(t, "tt0903747", id)
	assert.Equal(t, 2, season)
	assert.Equal(t, 5, episode)

	_, _, _, err = splitVideoID("tt1:2")
	assert.Error(t, err)
}
