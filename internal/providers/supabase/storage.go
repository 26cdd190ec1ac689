package supabase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"inkpost/internal/domain"
	"inkpost/internal/ports"
)

// TokenSource yields the bearer token of the signed-in user.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// Storage implements ports.ObjectStorage with the Storage REST API.
type Storage struct {
	client *Client
	tokens TokenSource
}

func NewStorage(client *Client, tokens TokenSource) *Storage {
	return &Storage{client: client, tokens: tokens}
}

func (s *Storage) token(ctx context.Context) string {
	if s.tokens == nil {
		return ""
	}
	return s.tokens.AccessToken(ctx)
}

type listedObject struct {
	Name      string `json:"name"`
	UpdatedAt string `json:"updated_at"`
	Metadata  *struct {
		Size int64 `json:"size"`
	} `json:"metadata"`
}

func (s *Storage) List(ctx context.Context, bucket string) ([]domain.StorageObject, error) {
	var listed []listedObject
	err := s.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/storage/v1/object/list/" + url.PathEscape(bucket),
		token:  s.token(ctx),
		json: map[string]any{
			"prefix": "",
			"limit":  100,
			"offset": 0,
			"sortBy": map[string]string{"column": "name", "order": "asc"},
		},
	}, &listed)
	if err != nil {
		return nil, fmt.Errorf("list bucket %s: %w", bucket, err)
	}

	objects := make([]domain.StorageObject, 0, len(listed))
	for _, item := range listed {
		obj := domain.StorageObject{Name: item.Name}
		if item.Metadata != nil {
			obj.Size = item.Metadata.Size
		}
		if item.UpdatedAt != "" {
			if ts, err := time.Parse(time.RFC3339, item.UpdatedAt); err == nil {
				obj.UpdatedAt = ts
			}
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func (s *Storage) SignedURL(ctx context.Context, bucket, name string, ttl time.Duration) (string, error) {
	var resp struct {
		SignedURL string `json:"signedURL"`
	}
	err := s.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/storage/v1/object/sign/" + objectPath(bucket, name),
		token:  s.token(ctx),
		json:   map[string]int64{"expiresIn": int64(ttl / time.Second)},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", bucket, name, err)
	}
	if resp.SignedURL == "" {
		return "", errors.New("supabase returned an empty signed url")
	}
	if strings.HasPrefix(resp.SignedURL, "http://") || strings.HasPrefix(resp.SignedURL, "https://") {
		return resp.SignedURL, nil
	}
	return s.client.cfg.URL + "/storage/v1" + resp.SignedURL, nil
}

func (s *Storage) Upload(ctx context.Context, bucket, name string, body io.Reader, opts ports.UploadOptions) error {
	headers := map[string]string{
		"x-upsert": strconv.FormatBool(opts.Upsert),
	}
	if opts.ContentType != "" {
		headers["Content-Type"] = opts.ContentType
	}
	if opts.CacheControl != "" {
		headers["Cache-Control"] = "max-age=" + opts.CacheControl
	}

	err := s.client.do(ctx, request{
		method:  http.MethodPost,
		path:    "/storage/v1/object/" + objectPath(bucket, name),
		token:   s.token(ctx),
		headers: headers,
		body:    body,
	}, nil)
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, name, err)
	}
	return nil
}

func objectPath(bucket, name string) string {
	segments := strings.Split(name, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}
