package subtitle

import "time"

// Entry represents a single timestamped subtitle line
type Entry struct {
	Index          int           // sequential index within the track
	Start          time.Duration // display start time
	End            time.Duration // display end time, zero when unknown
	Text           string        // source text
	TranslatedText string        // translated text, empty until translated
}

// StartMillis returns the start offset in whole milliseconds.
func (e Entry) StartMillis() int64 {
	return e.Start.Milliseconds()
}

// DisplayText returns the translated text, falling back to the source text
// when no translation is available yet.
func (e Entry) DisplayText() string {
	if e.TranslatedText != "" {
		return e.TranslatedText
	}
	return e.Text
}

// Translated reports whether the entry carries a translation.
func (e Entry) Translated() bool {
	return e.TranslatedText != ""
}
