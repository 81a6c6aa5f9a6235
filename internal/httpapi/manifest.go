package httpapi

import "github.com/sublate/sublate/internal/config"

// manifest describes the addon to media-browsing clients.
type manifest struct {
	ID            string         `json:"id"`
	Version       string         `json:"version"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Resources     []string       `json:"resources"`
	Types         []string       `json:"types"`
	Catalogs      []any          `json:"catalogs"`
	IDPrefixes    []string       `json:"idPrefixes"`
	BehaviorHints map[string]any `json:"behaviorHints"`
	Config        []configField  `json:"config"`
}

type configField struct {
	Key      string   `json:"key"`
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required"`
}

func (s *Server) manifest() manifest {
	langs := config.Languages()
	codes := make([]string, len(langs))
	for i, l := range langs {
		codes[i] = l.Code
	}
	return manifest{
		ID:          "org.sublate.subtitles",
		Version:     s.version,
		Name:        "Sublate",
		Description: "Machine-translated subtitles in your language",
		Resources:   []string{"subtitles"},
		Types:       []string{"movie", "series"},
		Catalogs:    []any{},
		IDPrefixes:  []string{"tt"},
		BehaviorHints: map[string]any{
			"configurable":          true,
			"configurationRequired": true,
		},
		Config: []configField{
			{Key: "key", Type: "text", Title: "Subtitle provider API key", Required: true},
			{Key: "lang", Type: "select", Title: "Target language", Options: codes, Required: true},
		},
	}
}
