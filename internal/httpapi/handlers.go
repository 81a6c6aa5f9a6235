package httpapi

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/pipeline"
	"github.com/sublate/sublate/internal/subtitle"
	"github.com/sublate/sublate/pkg/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleManifest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manifest())
}

func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	userCfg, err := userConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := subtitleRequest(r, userCfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := s.pipeline.Subtitles(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case pipeline.IsErrorType(err, pipeline.ErrNotFound):
			status = http.StatusNotFound
		case pipeline.IsErrorType(err, pipeline.ErrUpstream):
			status = http.StatusBadGateway
		}
		log.Error("Subtitle request %s failed: %v", req.CacheKey(), err)
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleSRT serves the cached track as a standard SRT file.
func (s *Server) handleSRT(w http.ResponseWriter, r *http.Request) {
	userCfg, err := userConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := subtitleRequest(r, userCfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := s.pipeline.Subtitles(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	entries := make([]subtitle.Entry, len(rec.Subtitles))
	for i, sub := range rec.Subtitles {
		entries[i] = subtitle.Entry{
			Start: time.Duration(sub.Start) * time.Millisecond,
			Text:  sub.Text,
		}
	}

	w.Header().Set("Content-Type", "application/x-subrip; charset=utf-8")
	_, _ = fmt.Fprint(w, subtitle.Serialize(entries))
}

var configureTemplate = template.Must(template.New("configure").Parse(`<!DOCTYPE html>
<html>
<head><title>Sublate</title></head>
<body>
<h1>Sublate</h1>
<p>Subtitle translation addon, version {{.Version}}.</p>
<p>Pick a target language and install with:</p>
<pre>{{.BaseURL}}/&lt;config-token&gt;/manifest.json</pre>
<ul>
{{range .Languages}}<li>{{.Code}}: {{.Name}}</li>
{{end}}</ul>
</body>
</html>
`))

func (s *Server) handleConfigure(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := configureTemplate.Execute(w, map[string]any{
		"Version":   s.version,
		"BaseURL":   s.baseURL,
		"Languages": config.Languages(),
	})
	if err != nil {
		log.Error("Failed to render configure page: %v", err)
	}
}

// subtitleRequest assembles the pipeline request from path and query. The id
// segment may carry series coordinates ("tt123:1:2"); the optional extra
// segment carries client hints such as the local filename.
func subtitleRequest(r *http.Request, userCfg *config.UserConfig) (pipeline.Request, error) {
	contentType := r.PathValue("type")
	if contentType != "movie" && contentType != "series" {
		return pipeline.Request{}, fmt.Errorf("unsupported content type: %s", contentType)
	}

	id := strings.TrimSuffix(r.PathValue("id"), ".json")
	contentID, season, episode, err := splitVideoID(id)
	if err != nil {
		return pipeline.Request{}, err
	}

	req := pipeline.Request{
		Identity:    userCfg.Identity(),
		ContentType: contentType,
		ContentID:   contentID,
		Season:      season,
		Episode:     episode,
		TargetLang:  userCfg.Lang,
	}

	if extra := strings.TrimSuffix(r.PathValue("extra"), ".json"); extra != "" {
		if values, err := url.ParseQuery(extra); err == nil {
			req.ReferenceName = values.Get("filename")
		}
	}
	if start := r.URL.Query().Get("start"); start != "" {
		ms, err := strconv.ParseInt(start, 10, 64)
		if err != nil || ms < 0 {
			return pipeline.Request{}, fmt.Errorf("invalid start offset: %s", start)
		}
		req.StartOffset = time.Duration(ms) * time.Millisecond
	}
	return req, nil
}

// splitVideoID splits "tt123" or "tt123:1:2" into content id and series
// coordinates.
func splitVideoID(id string) (string, int, int, error) {
	parts := strings.Split(id, ":")
	switch len(parts) {
	case 1:
		return parts[0], 0, 0, nil
	case 3:
		season, err := strconv.Atoi(parts[1])
		if err != nil {
			return "", 0, 0, fmt.Errorf("invalid season in id %s", id)
		}
		episode, err := strconv.Atoi(parts[2])
		if err != nil {
			return "", 0, 0, fmt.Errorf("invalid episode in id %s", id)
		}
		return parts[0], season, episode, nil
	default:
		return "", 0, 0, fmt.Errorf("unrecognized video id: %s", id)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
