package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"

	"mailgraph/internal/domain"
)

const (
	defaultMaxRetries = 3
	defaultTimeout    = 60 * time.Second
	schemaName        = "knowledge_concepts"
)

// SecretGetter resolves the API token. paramstore.Client satisfies it.
type SecretGetter interface {
	Secret(ctx context.Context, name string) (string, error)
}

// conceptResponse is the structured output requested from the model.
type conceptResponse struct {
	Concepts []domain.Concept `json:"concepts" jsonschema:"description=Distinct concepts discussed in the text"`
}

// Extractor turns cleaned mail text into concepts using an OpenAI-compatible
// chat completions endpoint with a strict JSON schema.
type Extractor struct {
	secrets    SecretGetter
	tokenName  string
	model      string
	provider   string
	baseURL    string
	maxRetries int
	httpClient *http.Client

	mu     sync.Mutex
	client *openai.Client
}

type Option func(*Extractor)

// WithBaseURL targets a compatible endpoint such as OpenRouter.
func WithBaseURL(u string) Option {
	return func(e *Extractor) { e.baseURL = strings.TrimSpace(u) }
}

// WithMaxRetries overrides the automatic retry count on transient failures.
func WithMaxRetries(n int) Option {
	return func(e *Extractor) { e.maxRetries = n }
}

// WithProvider names the provider reported when the response carries none.
func WithProvider(p string) Option {
	return func(e *Extractor) { e.provider = p }
}

func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.httpClient = c }
}

// NewExtractor creates an Extractor. The API token is read through secrets on
// the first call and reused for the lifetime of the process.
func NewExtractor(secrets SecretGetter, tokenName, model string, opts ...Option) (*Extractor, error) {
	if secrets == nil {
		return nil, errors.New("openai: secret getter must not be nil")
	}
	if strings.TrimSpace(tokenName) == "" {
		return nil, errors.New("openai: token name must not be empty")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	e := &Extractor{
		secrets:    secrets,
		tokenName:  tokenName,
		model:      model,
		provider:   "openai",
		maxRetries: defaultMaxRetries,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// resolveClient builds the client on first success. A failed token lookup
// is not cached; the next call retries it.
func (e *Extractor) resolveClient(ctx context.Context) (*openai.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client, nil
	}
	key, err := e.secrets.Secret(ctx, e.tokenName)
	if err != nil {
		return nil, fmt.Errorf("openai: resolve api token: %w", err)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(e.maxRetries),
		option.WithHTTPClient(e.httpClient),
	}
	if e.baseURL != "" {
		opts = append(opts, option.WithBaseURL(e.baseURL))
	}
	c := openai.NewClient(opts...)
	e.client = &c
	return e.client, nil
}

// Extract sends text as the user message and prompt as the system message.
// It fails when the completion cannot be decoded into concepts.
func (e *Extractor) Extract(ctx context.Context, text, prompt string) (domain.Extraction, error) {
	client, err := e.resolveClient(ctx)
	if err != nil {
		return domain.Extraction{}, err
	}

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        schemaName,
					Description: openai.String("Concepts, keywords and URLs found in a newsletter"),
					Schema:      generateSchema(conceptResponse{}),
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Extraction{}, errors.New("openai: no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return domain.Extraction{}, fmt.Errorf("openai: empty response (finish_reason: %s)", resp.Choices[0].FinishReason)
	}

	var out conceptResponse
	if err := unmarshalFlexible(content, &out); err != nil {
		return domain.Extraction{}, fmt.Errorf("openai: decode concepts: %w", err)
	}

	provider := gjson.Get(resp.RawJSON(), "provider").String()
	if provider == "" {
		provider = e.provider
	}
	return domain.Extraction{
		Concepts:         out.Concepts,
		TotalTokens:      int(resp.Usage.TotalTokens),
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		CachedTokens:     int(resp.Usage.PromptTokensDetails.CachedTokens),
		Model:            resp.Model,
		Provider:         provider,
	}, nil
}

func generateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflector.Reflect(reflect.New(t).Interface())
}

// unmarshalFlexible decodes model output, falling back to a double-encoded
// string and then to a repaired document.
func unmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)
	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(asString), out); err == nil {
			return nil
		}
		input = asString
	}

	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal repaired output: %w", err)
	}
	return nil
}
