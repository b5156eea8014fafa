// Package llm turns a user message into a model.ParsedIntent with an
// OpenAI compatible chat model driven through an eino chain.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	chatmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/cockroachdb/errors"

	"github.com/iliyamo/showtime-chatbot/internal/config"
	"github.com/iliyamo/showtime-chatbot/internal/logger"
	"github.com/iliyamo/showtime-chatbot/internal/model"
)

// ErrMalformedOutput is returned when the model reply is not a usable
// intent object.
var ErrMalformedOutput = errors.New("malformed extractor output")

// Config configures the chat model and prompt.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float32
	Instructions string
	Examples     []config.PromptExample
}

// Extractor calls the chat model once per message.  It keeps no state
// between calls and is safe for concurrent use.
type Extractor struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	instructions string
	examples     []config.PromptExample
	now          func() time.Time
}

// NewExtractor builds the template -> chat model chain.
func NewExtractor(ctx context.Context, cfg Config) (*Extractor, error) {
	maxTokens := cfg.MaxTokens
	temperature := cfg.Temperature
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating chat model: %w", err)
	}
	return newExtractor(ctx, cm, cfg)
}

func newExtractor(ctx context.Context, cm chatmodel.BaseChatModel, cfg Config) (*Extractor, error) {
	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(newTemplate()).
		AppendChatModel(cm).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating eino chain: %w", err)
	}
	return &Extractor{
		chain:        chain,
		instructions: cfg.Instructions,
		examples:     cfg.Examples,
		now:          time.Now,
	}, nil
}

// Extract classifies text given the preceding turns.  Model failures and
// unusable replies are both returned as errors; there is no retry.
func (e *Extractor) Extract(ctx context.Context, text string, history []model.Turn) (*model.ParsedIntent, error) {
	start := time.Now()
	out, err := e.chain.Invoke(ctx, map[string]any{
		"instructions": buildInstructions(e.instructions, e.examples, e.now()),
		"input_text":   formatInput(text, history),
	})
	if err != nil {
		return nil, errors.Wrap(err, "invoke extractor chain")
	}
	intent, err := ParseIntent(out.Content)
	if err != nil {
		logger.Warn().Err(err).Str("reply", truncate(out.Content, 200)).Msg("extractor reply rejected")
		return nil, err
	}
	logger.Debug().
		Str("intent", string(intent.Intent)).
		Dur("took", time.Since(start)).
		Int("history", len(history)).
		Msg("intent extracted")
	return intent, nil
}

// rawIntent accepts the loose shapes models produce: num_tickets as a
// number or a string, and a combined "showtime" field.
type rawIntent struct {
	Intent      string          `json:"intent"`
	MovieName   string          `json:"movie_name"`
	City        string          `json:"city"`
	Locality    string          `json:"locality"`
	CinemaName  string          `json:"cinema_name"`
	Showtime    string          `json:"showtime"`
	Date        string          `json:"date"`
	Time        string          `json:"time"`
	NumTickets  json.RawMessage `json:"num_tickets"`
	Language    string          `json:"language"`
	Genre       string          `json:"genre"`
	TimeContext string          `json:"time_context"`
}

// ParseIntent decodes a model reply.  Markdown code fences and text around
// the JSON object are ignored.  A missing or non-positive ticket count is
// rejected only when present.
func ParseIntent(reply string) (*model.ParsedIntent, error) {
	body := extractJSONObject(reply)
	if body == "" {
		return nil, errors.Mark(errors.New("no JSON object in reply"), ErrMalformedOutput)
	}
	var raw rawIntent
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode intent"), ErrMalformedOutput)
	}
	if strings.TrimSpace(raw.Intent) == "" {
		return nil, errors.Mark(errors.New("reply has no intent"), ErrMalformedOutput)
	}
	p := &model.ParsedIntent{
		Intent:      model.ParseIntentKind(raw.Intent),
		MovieName:   strings.TrimSpace(raw.MovieName),
		City:        strings.TrimSpace(raw.City),
		Locality:    strings.TrimSpace(raw.Locality),
		CinemaName:  strings.TrimSpace(raw.CinemaName),
		Showtime:    strings.TrimSpace(raw.Showtime),
		Date:        strings.TrimSpace(raw.Date),
		Time:        strings.TrimSpace(raw.Time),
		Language:    strings.TrimSpace(raw.Language),
		Genre:       strings.TrimSpace(raw.Genre),
		TimeContext: strings.TrimSpace(raw.TimeContext),
	}
	n, present, err := parseTickets(raw.NumTickets)
	if err != nil {
		return nil, errors.Mark(err, ErrMalformedOutput)
	}
	if present {
		p.NumTickets = &n
	}
	return p, nil
}

func parseTickets(raw json.RawMessage) (int, bool, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, false, errors.Newf("num_tickets %s is not a number", s)
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(str), "%g", &f); err != nil {
			return 0, false, errors.Newf("num_tickets %q is not a number", str)
		}
	}
	if f < 1 || f != float64(int(f)) {
		return 0, false, errors.Newf("num_tickets %v is not a positive integer", f)
	}
	return int(f), true, nil
}

func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
