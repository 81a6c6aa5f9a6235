// Package translate adapts the Google Translate backend to the pipeline's
// Translator contract.
package translate

import (
	"context"
	"os"

	googletrans "github.com/Conight/go-googletrans"

	"github.com/sublate/sublate/internal/pipeline"
)

// GoogleTranslator translates text into one fixed target language.
type GoogleTranslator struct {
	client *googletrans.Translator
	target string
}

var _ pipeline.Translator = (*GoogleTranslator)(nil)

// NewGoogle builds a translator bound to targetLang (e.g. "es", "zh-cn").
func NewGoogle(targetLang string) *GoogleTranslator {
	return &GoogleTranslator{
		client: googletrans.New(googletrans.Config{
			Proxy: os.Getenv("http_proxy"),
		}),
		target: targetLang,
	}
}

// Translate translates text from its auto-detected source language. The call
// runs in a goroutine so a context cancellation releases the caller even
// though the underlying client does not take a context.
func (t *GoogleTranslator) Translate(ctx context.Context, text string) (string, error) {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		translated, err := t.client.Translate(text, "auto", t.target)
		if err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{text: translated.Text}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.text, r.err
	}
}

// Factory returns the pipeline's translator factory backed by Google
// Translate.
func Factory() pipeline.TranslatorFactory {
	return func(targetLang string) pipeline.Translator {
		return NewGoogle(targetLang)
	}
}
