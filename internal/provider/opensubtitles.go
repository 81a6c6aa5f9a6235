// Package provider implements the subtitle-search collaborator against an
// OpenSubtitles-compatible REST API.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sublate/sublate/internal/pipeline"
	"github.com/sublate/sublate/internal/track"
)

const (
	DefaultBaseURL = "https://api.opensubtitles.com/api/v1"

	userAgent       = "sublate v1.0"
	maxSubtitleSize = 10 << 20
)

// Client talks to an OpenSubtitles-compatible API. It implements
// pipeline.Provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ pipeline.Provider = (*Client)(nil)

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type searchResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Release          string `json:"release"`
			DownloadCount    int    `json:"download_count"`
			ForeignPartsOnly bool   `json:"foreign_parts_only"`
			Files            []struct {
				FileID   int    `json:"file_id"`
				FileName string `json:"file_name"`
			} `json:"files"`
		} `json:"attributes"`
	} `json:"data"`
}

// Search looks up candidate tracks for one title.
func (c *Client) Search(ctx context.Context, req pipeline.SearchRequest) ([]track.Candidate, error) {
	params := url.Values{}
	params.Set("imdb_id", strings.TrimPrefix(req.ContentID, "tt"))
	if req.Languages != "" {
		params.Set("languages", req.Languages)
	}
	if req.ContentType == "series" {
		params.Set("season_number", strconv.Itoa(req.Season))
		params.Set("episode_number", strconv.Itoa(req.Episode))
	}

	var decoded searchResponse
	if err := c.getJSON(ctx, "/subtitles?"+params.Encode(), &decoded); err != nil {
		return nil, err
	}

	candidates := make([]track.Candidate, 0, len(decoded.Data))
	for _, d := range decoded.Data {
		candidate := track.Candidate{
			ID:               d.ID,
			ReleaseLabel:     d.Attributes.Release,
			DownloadCount:    d.Attributes.DownloadCount,
			ForeignPartsOnly: d.Attributes.ForeignPartsOnly,
		}
		if len(d.Attributes.Files) > 0 {
			candidate.FileID = d.Attributes.Files[0].FileID
			candidate.FileName = d.Attributes.Files[0].FileName
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// Download resolves a download link for the file and fetches the raw
// subtitle body.
func (c *Client) Download(ctx context.Context, fileID int) (string, error) {
	body := fmt.Sprintf(`{"file_id":%d}`, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/download", strings.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var decoded struct {
		Link     string `json:"link"`
		FileName string `json:"file_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode download response: %w", err)
	}
	if decoded.Link == "" {
		return "", fmt.Errorf("download response carried no link")
	}

	fileReq, err := http.NewRequestWithContext(ctx, http.MethodGet, decoded.Link, nil)
	if err != nil {
		return "", err
	}
	fileResp, err := c.httpClient.Do(fileReq)
	if err != nil {
		return "", fmt.Errorf("fetch subtitle file: %w", err)
	}
	defer fileResp.Body.Close()

	if fileResp.StatusCode != http.StatusOK {
		return "", statusError(fileResp)
	}

	content, err := io.ReadAll(io.LimitReader(fileResp.Body, maxSubtitleSize))
	if err != nil {
		return "", fmt.Errorf("read subtitle file: %w", err)
	}
	return string(content), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Api-Key", c.apiKey)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
