package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the slice of *s3.Client used by Client.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client writes processed-message artifacts to a single bucket.
type Client struct {
	api    s3API
	bucket string
	prefix string
}

// New creates a Client. prefix is prepended verbatim to every key, so it
// should end with "/" when it names a folder.
func New(api s3API, bucket, prefix string) (*Client, error) {
	if api == nil {
		return nil, errors.New("blobstore: api must not be nil")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("blobstore: bucket must not be empty")
	}
	return &Client{api: api, bucket: bucket, prefix: strings.TrimLeft(prefix, "/")}, nil
}

// Upload stores data under prefix+key. The content type follows the key's
// extension.
func (c *Client) Upload(ctx context.Context, key string, data []byte) error {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return errors.New("blobstore: key is required")
	}
	fullKey := c.prefix + key
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(fullKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("blobstore: put %q: %w", fullKey, err)
	}
	return nil
}

func contentType(key string) string {
	ext := path.Ext(key)
	if ext == ".json" {
		return "application/json"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
