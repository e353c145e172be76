package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures the OpenAI lyric writer.
type OpenAIOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Fallback   Writer
	OnFallback func(reason string, err error)
}

// OpenAIWriter writes lyrics with the OpenAI chat API. Every failure path
// degrades to the fallback writer instead of surfacing an error.
type OpenAIWriter struct {
	client     *openai.Client
	model      string
	hasKey     bool
	fallback   Writer
	onFallback func(reason string, err error)
}

const openAIDefaultTimeout = 15 * time.Second

func NewOpenAIWriter(opts OpenAIOptions) *OpenAIWriter {
	apiKey := strings.TrimSpace(opts.APIKey)
	cfg := openai.DefaultConfig(apiKey)
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		cfg.BaseURL = base
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	} else {
		cfg.HTTPClient = &http.Client{Timeout: openAIDefaultTimeout}
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = NewStaticWriter()
	}
	return &OpenAIWriter{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		hasKey:     apiKey != "",
		fallback:   fallback,
		onFallback: opts.OnFallback,
	}
}

type modelLyricsPayload struct {
	Title  string `json:"title"`
	Lyrics string `json:"lyrics"`
}

func (o *OpenAIWriter) Write(ctx context.Context, req Request) (*Lyrics, error) {
	if !o.hasKey {
		return o.useFallback(ctx, req, "missing_api_key", nil)
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.8,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: `You are a professional songwriter. Respond only with a JSON object of the form {"title": string, "lyrics": string}. Structure the lyrics with [Verse] and [Chorus] markers.`,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildLyricsPrompt(req),
			},
		},
	})
	if err != nil {
		return o.useFallback(ctx, req, "chat_completion", err)
	}
	if len(resp.Choices) == 0 {
		return o.useFallback(ctx, req, "empty_choices", errors.New("no choices"))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return o.useFallback(ctx, req, "empty_response", errors.New("empty response"))
	}
	var parsed modelLyricsPayload
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &parsed); err != nil {
		return o.useFallback(ctx, req, "parse_payload", err)
	}
	if strings.TrimSpace(parsed.Lyrics) == "" {
		return o.useFallback(ctx, req, "empty_lyrics", errors.New("model returned no lyrics"))
	}
	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		title = strings.TrimSpace(req.Theme)
	}
	return &Lyrics{
		Title: title,
		Text:  strings.TrimSpace(parsed.Lyrics),
		Metadata: map[string]string{
			"locale": req.Locale,
			"model":  o.model,
		},
		Provider: openAIProviderName,
	}, nil
}

func (o *OpenAIWriter) useFallback(ctx context.Context, req Request, reason string, fallbackErr error) (*Lyrics, error) {
	if o.onFallback != nil {
		o.onFallback(reason, fallbackErr)
	}
	res, err := o.fallback.Write(ctx, req)
	if res != nil {
		if res.Provider == "" {
			res.Provider = staticProviderName
		}
		if res.Metadata == nil {
			res.Metadata = map[string]string{}
		}
		if reason != "" {
			res.Metadata["fallback_reason"] = reason
		}
	}
	return res, err
}

func buildLyricsPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write song lyrics about: %s.", strings.TrimSpace(req.Theme))
	if style := strings.TrimSpace(req.Style); style != "" {
		fmt.Fprintf(&b, " Musical style: %s.", style)
	}
	if mood := strings.TrimSpace(req.Mood); mood != "" {
		fmt.Fprintf(&b, " Mood: %s.", mood)
	}
	if locale := strings.TrimSpace(req.Locale); locale != "" {
		fmt.Fprintf(&b, " Language: %s.", locale)
	}
	return b.String()
}

// stripCodeFence removes a markdown fence when the model wraps its JSON in
// one despite the response format hint.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

var _ Writer = (*OpenAIWriter)(nil)
