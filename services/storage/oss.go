package storagesvc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
)

const listPageSize = 1000

// OSSStorage stores objects in an Aliyun OSS bucket, optionally under a key prefix.
type OSSStorage struct {
	bucket     *oss.Bucket
	endpoint   string
	bucketName string
	prefix     string
}

var _ core.FileStorage = (*OSSStorage)(nil)

func NewOSSStorage(conf *core.Config) (*OSSStorage, error) {
	sc := conf.Storage
	if sc.OSSEndpoint == "" || sc.OSSAccessKey == "" || sc.OSSSecretKey == "" || sc.OSSBucket == "" {
		return nil, errors.New("incomplete OSS configuration: endpoint, access key, secret key & bucket are required")
	}
	client, err := oss.New(sc.OSSEndpoint, sc.OSSAccessKey, sc.OSSSecretKey)
	if err != nil {
		return nil, errors.Wrap(err, "creating OSS client")
	}
	bucket, err := client.Bucket(sc.OSSBucket)
	if err != nil {
		return nil, errors.Wrap(err, "getting OSS bucket")
	}

	prefix := strings.Trim(sc.OSSPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &OSSStorage{
		bucket:     bucket,
		endpoint:   sc.OSSEndpoint,
		bucketName: sc.OSSBucket,
		prefix:     prefix,
	}, nil
}

func (s *OSSStorage) objectKey(key string) string {
	return s.prefix + strings.TrimPrefix(key, "/")
}

func isNoSuchKey(err error) bool {
	var svcErr oss.ServiceError
	return errors.As(err, &svcErr) && (svcErr.StatusCode == http.StatusNotFound || svcErr.Code == "NoSuchKey")
}

func (s *OSSStorage) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	err := s.bucket.PutObject(
		s.objectKey(key),
		r,
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
	)
	return errors.Wrap(err, "putting OSS object")
}

func (s *OSSStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	body, err := s.bucket.GetObject(s.objectKey(key), oss.WithContext(ctx))
	if err != nil {
		if isNoSuchKey(err) {
			return nil, core.ErrFileNotFound
		}
		return nil, errors.Wrap(err, "getting OSS object")
	}
	return body, nil
}

// Delete removes an object. OSS does not report missing keys on delete.
func (s *OSSStorage) Delete(ctx context.Context, key string) error {
	return errors.Wrap(s.bucket.DeleteObject(s.objectKey(key), oss.WithContext(ctx)), "deleting OSS object")
}

func (s *OSSStorage) List(ctx context.Context, prefix string) ([]core.FileInfo, error) {
	var (
		files  []core.FileInfo
		marker = oss.Marker("")
	)
	for {
		res, err := s.bucket.ListObjects(oss.WithContext(ctx), oss.Prefix(s.objectKey(prefix)), marker, oss.MaxKeys(listPageSize))
		if err != nil {
			return nil, errors.Wrap(err, "listing OSS objects")
		}
		for _, obj := range res.Objects {
			if obj.Key == "" {
				continue
			}
			files = append(files, core.FileInfo{
				Key:          strings.TrimPrefix(obj.Key, s.prefix),
				Size:         obj.Size,
				LastModified: obj.LastModified.UTC(),
			})
		}
		if !res.IsTruncated {
			return files, nil
		}
		marker = oss.Marker(res.NextMarker)
	}
}

func (s *OSSStorage) PublicURL(key string) string {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(s.endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", s.bucketName, endpoint, escapeKey(s.objectKey(key)))
}

func (s *OSSStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	url, err := s.bucket.SignURL(s.objectKey(key), oss.HTTPGet, int64(ttl.Seconds()), oss.WithContext(ctx))
	return url, errors.Wrap(err, "signing OSS url")
}
