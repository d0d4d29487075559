package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	values map[string]string
	getErr error
	lastIn *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastIn = in
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name}}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: &v}}, nil
}

func mustNew(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	c, err := New(api, "/mailgraph/")
	require.NoError(t, err)
	return c
}

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/p": `{"k":"v"}`}}
	v, err := mustNew(t, api).GetParameter(context.Background(), "/p")
	require.NoError(t, err)
	require.Equal(t, `{"k":"v"}`, v)
	require.True(t, *api.lastIn.WithDecryption)
}

func TestGetParameter_MissingValue(t *testing.T) {
	_, err := mustNew(t, &fakeAPI{}).GetParameter(context.Background(), "/p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_ApiError(t *testing.T) {
	_, err := mustNew(t, &fakeAPI{getErr: errors.New("boom")}).GetParameter(context.Background(), "/p")
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	_, err := mustNew(t, &fakeAPI{}).GetParameter(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestSecret(t *testing.T) {
	api := &fakeAPI{values: map[string]string{
		"/mailgraph/llm-api-token":  `{"token":"sk-from-ssm"}`,
		"/mailgraph/imap-password":  "  hunter2 \n",
		"/mailgraph/graph-password": `{"token":""}`,
		"/mailgraph/mongo-uri":      `{not json`,
	}}
	c := mustNew(t, api)
	ctx := context.Background()

	v, err := c.Secret(ctx, LLMToken)
	require.NoError(t, err)
	require.Equal(t, "sk-from-ssm", v)

	v, err = c.Secret(ctx, IMAPPassword)
	require.NoError(t, err)
	require.Equal(t, "hunter2", v)

	_, err = c.Secret(ctx, GraphPassword)
	require.ErrorContains(t, err, "token is empty")

	_, err = c.Secret(ctx, MongoURI)
	require.ErrorContains(t, err, "unmarshal")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "/mailgraph")
	require.ErrorContains(t, err, "must not be nil")

	_, err = New(&fakeAPI{}, " / ")
	require.ErrorContains(t, err, "prefix")
}
