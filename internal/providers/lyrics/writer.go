package lyrics

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	openAIProviderName = "openai"
	staticProviderName = "static"
)

// Request captures the creative inputs for lyric writing.
type Request struct {
	Theme  string
	Style  string
	Mood   string
	Locale string
}

// Lyrics is a finished set of song lyrics with the provider that wrote them.
type Lyrics struct {
	Title    string            `json:"title"`
	Text     string            `json:"lyrics"`
	Metadata map[string]string `json:"metadata"`
	Provider string            `json:"-"`
}

type Writer interface {
	Write(ctx context.Context, req Request) (*Lyrics, error)
}

// StaticWriter produces deterministic template lyrics. It backs the OpenAI
// writer when the remote call cannot be made, so a generation request never
// fails for lack of lyrics.
type StaticWriter struct{}

func NewStaticWriter() *StaticWriter {
	return &StaticWriter{}
}

func (s *StaticWriter) Write(ctx context.Context, req Request) (*Lyrics, error) {
	c := cases.Title(language.Und)
	theme := strings.TrimSpace(req.Theme)
	if theme == "" {
		theme = "the open road"
	}
	mood := strings.TrimSpace(req.Mood)
	if mood == "" {
		mood = "hopeful"
	}
	title := c.String(theme)
	text := fmt.Sprintf(
		"[Verse 1]\nWalking through %s tonight\nEvery shadow turning into light\n\n[Chorus]\n%s, %s\nWe carry on, %s\n\n[Verse 2]\nThe morning finds us where we stand\nA %s song in every hand",
		theme, title, title, mood, mood,
	)
	return &Lyrics{
		Title: title,
		Text:  text,
		Metadata: map[string]string{
			"locale": req.Locale,
		},
		Provider: staticProviderName,
	}, nil
}

var _ Writer = (*StaticWriter)(nil)
