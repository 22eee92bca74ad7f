// Package media stores uploaded photos and logos in S3-compatible object
// storage and hands back their public URLs.
package media

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type Store struct {
	client     *minio.Client
	endpoint   string
	secure     bool
	bucket     string
	publicBase string
	logger     *zap.Logger
}

type OptionFunc func(*Store)

// WithBucket sets the bucket objects are written to.
func WithBucket(bucket string) OptionFunc {
	return func(s *Store) {
		s.bucket = bucket
	}
}

// WithPublicBase sets the URL prefix objects are served from, such as a CDN.
// Without it URLs point straight at the endpoint in path style.
func WithPublicBase(base string) OptionFunc {
	return func(s *Store) {
		s.publicBase = strings.TrimRight(base, "/")
	}
}

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(endpoint, accessKey, secretKey string, secure bool, opts ...OptionFunc) (*Store, error) {
	s := &Store{
		endpoint: endpoint,
		secure:   secure,
		bucket:   "flames-media",
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	s.client = client
	s.logger = s.logger.Named("media")
	return s, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("created bucket", zap.String("bucket", s.bucket))
	return nil
}

// Upload writes data under key and returns its public URL.
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Debug("uploaded object", zap.String("key", key), zap.Int("bytes", len(data)))
	return s.PublicURL(key), nil
}

func (s *Store) PublicURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if s.publicBase != "" {
		return s.publicBase + "/" + escaped
	}
	scheme := "http"
	if s.secure {
		scheme = "https"
	}
	return scheme + "://" + s.endpoint + "/" + s.bucket + "/" + escaped
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey names an upload as prefix/<unix millis>_<cleaned filename>.
func ObjectKey(prefix, filename string, now time.Time) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	name = strings.Trim(unsafeName.ReplaceAllString(name, "-"), "-.")
	if name == "" {
		name = "upload"
	}
	return strings.Trim(prefix, "/") + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + name
}
