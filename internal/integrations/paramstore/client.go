package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Parameter names under the service prefix.
const (
	LLMToken      = "/llm-api-token"
	IMAPPassword  = "/imap-password"
	GraphPassword = "/graph-password"
	MongoURI      = "/mongo-uri"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// tokenPayload is the JSON shape some secrets are stored in.
type tokenPayload struct {
	Token string `json:"token"`
}

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api    ssmAPI
	prefix string
}

// New creates a Client. Names passed to Secret are joined to prefix.
func New(api ssmAPI, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("paramstore: prefix must not be empty")
	}
	return &Client{api: api, prefix: prefix}, nil
}

// GetParameter returns the decrypted value of a fully-qualified parameter.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// Secret reads prefix+name. Values stored as {"token": "..."} are unwrapped;
// anything else is returned as-is.
func (c *Client) Secret(ctx context.Context, name string) (string, error) {
	raw, err := c.GetParameter(ctx, c.prefix+"/"+strings.TrimLeft(name, "/"))
	if err != nil {
		return "", err
	}
	v, err := unwrapToken(raw)
	if err != nil {
		return "", fmt.Errorf("paramstore: secret %q: %w", name, err)
	}
	return v, nil
}

func unwrapToken(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		if trimmed == "" {
			return "", errors.New("value is empty")
		}
		return trimmed, nil
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(trimmed), &tp); err != nil {
		return "", fmt.Errorf("unmarshal token JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("token is empty")
	}
	return tp.Token, nil
}
