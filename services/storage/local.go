// Package storagesvc implements core.FileStorage on the local disk or on Aliyun OSS.
package storagesvc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
)

var (
	ErrInvalidKey       = errors.New("invalid object key")
	ErrInvalidSignature = errors.New("invalid or expired signature")
)

// LocalStorage keeps objects in a directory. Its files are served by the API
// through HMAC signed URLs.
type LocalStorage struct {
	root    string
	baseURL string
	secret  []byte
	clock   clockwork.Clock
}

var _ core.FileStorage = (*LocalStorage)(nil)

func NewLocalStorage(conf *core.Config, clock clockwork.Clock) (*LocalStorage, error) {
	root := conf.Storage.LocalDir
	if !filepath.IsAbs(root) {
		root = filepath.Join(conf.WorkDir, root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating storage dir %s", root)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LocalStorage{
		root:    root,
		baseURL: strings.TrimRight(conf.Storage.PublicBaseURL, "/"),
		secret:  []byte(conf.SecretKey),
		clock:   clock,
	}, nil
}

// CleanKey rejects absolute keys and keys escaping the storage root.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	cleaned := path.Clean(key)
	if key == "" || cleaned == "." || cleaned != key || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

func (s *LocalStorage) path(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *LocalStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "creating object dir")
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing object")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing object")
	}
	return errors.Wrap(os.Rename(tmp.Name(), p), "moving object")
}

func (s *LocalStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, core.ErrFileNotFound
	}
	return f, err
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return core.ErrFileNotFound
		}
		return errors.Wrap(err, "deleting object")
	}
	return nil
}

func (s *LocalStorage) List(_ context.Context, prefix string) ([]core.FileInfo, error) {
	var files []core.FileInfo
	err := filepath.Walk(s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			files = append(files, core.FileInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing objects")
	}
	return files, nil
}

func (s *LocalStorage) PublicURL(key string) string {
	return s.baseURL + "/" + escapeKey(key)
}

func (s *LocalStorage) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	expires := strconv.FormatInt(s.clock.Now().Add(ttl).Unix(), 10)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("signature", s.sign(key, expires))
	return s.PublicURL(key) + "?" + q.Encode(), nil
}

// Verify checks the signature of a signed URL and that it has not expired.
func (s *LocalStorage) Verify(key, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if s.clock.Now().Unix() > exp {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(signature), []byte(s.sign(key, expires))) {
		return ErrInvalidSignature
	}
	return nil
}

func (s *LocalStorage) sign(key, expires string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key + "\n" + expires))
	return hex.EncodeToString(mac.Sum(nil))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
