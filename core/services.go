package core

import (
	"context"
	"io"
	"time"
)

var ErrFileNotFound = NewNotFoundError("file not found")

// PapersCachePrefix prefixes every cached paper listing of a test.
func PapersCachePrefix(testID string) string {
	return "papers:" + testID + ":"
}

// ReportCacheKey is the cache key of the results summary of a test.
func ReportCacheKey(testID string) string {
	return "report:summary:" + testID
}

// InvalidateTests drops the cached paper listings and results summaries of the tests.
func InvalidateTests(ctx context.Context, cache Cache, testIDs ...string) error {
	for _, id := range testIDs {
		if err := cache.DeletePrefix(ctx, PapersCachePrefix(id)); err != nil {
			return err
		}
		if err := cache.Delete(ctx, ReportCacheKey(id)); err != nil {
			return err
		}
	}
	return nil
}

type (
	// Cache stores JSON encodable values.
	Cache interface {
		// Get decodes the cached value into dst. found is false on cache miss.
		Get(ctx context.Context, key string, dst interface{}) (found bool, err error)
		Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
		Delete(ctx context.Context, keys ...string) error
		DeletePrefix(ctx context.Context, prefix string) error
	}

	FileInfo struct {
		Key          string
		Size         int64
		LastModified time.Time
	}

	// FileStorage is an object storage bucket.
	FileStorage interface {
		Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
		Open(ctx context.Context, key string) (io.ReadCloser, error)
		Delete(ctx context.Context, key string) error
		List(ctx context.Context, prefix string) ([]FileInfo, error)
		PublicURL(key string) string
		SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	}

	ChatRequest struct {
		System    string
		Prompt    string
		JSON      bool     // ask for a JSON object response
		ImageURLs []string // attached images (answer sheets)
	}

	// ChatCompleter is any chat-completion API.
	ChatCompleter interface {
		Complete(ctx context.Context, req ChatRequest) (string, error)
	}
)
