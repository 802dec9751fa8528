// Package objectstore stores route photos in an S3 compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const defaultContentType = "image/tiff"

// Config describes the bucket and how clients reach stored photos.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string

	// PublicURL, when set, makes ResolveURL return <PublicURL>/<bucket>/<key>
	// instead of a presigned link.
	PublicURL string
	URLTTL    time.Duration
}

// Gateway uploads photos and hands out URLs for them.
type Gateway struct {
	client  *minio.Client
	cfg     Config
	breaker *gobreaker.CircuitBreaker[minio.ObjectInfo]
}

// New builds a Gateway. It does not touch the network; call EnsureBucket at startup.
func New(cfg Config) (*Gateway, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("objectstore: bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = time.Hour
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create client: %w", err)
	}

	g := &Gateway{client: client, cfg: cfg}
	g.breaker = gobreaker.NewCircuitBreaker[minio.ObjectInfo](gobreaker.Settings{
		Name:        "objectstore",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isNotFound(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Object store circuit breaker changed state")
		},
	})
	return g, nil
}

// Bucket returns the configured bucket name.
func (g *Gateway) Bucket() string { return g.cfg.Bucket }

// ObjectKey is the storage key of a route photo.
func ObjectKey(routeID uint, fileName string) string {
	return "routes/" + strconv.FormatUint(uint64(routeID), 10) + "/" + fileName
}

// EnsureBucket creates the bucket when it does not exist yet. Losing a
// creation race to another instance counts as success.
func (g *Gateway) EnsureBucket(ctx context.Context) error {
	exists, err := g.client.BucketExists(ctx, g.cfg.Bucket)
	if err != nil {
		return &Error{Op: "bucket-exists", Key: g.cfg.Bucket, Err: err}
	}
	if exists {
		logrus.WithField("bucket", g.cfg.Bucket).Info("Bucket already exists")
	} else {
		err = g.client.MakeBucket(ctx, g.cfg.Bucket, minio.MakeBucketOptions{Region: g.cfg.Region})
		if err != nil && !alreadyExists(err) {
			return &Error{Op: "make-bucket", Key: g.cfg.Bucket, Err: err}
		}
		logrus.WithField("bucket", g.cfg.Bucket).Info("Bucket created")
	}

	if g.cfg.PublicURL != "" {
		if err := g.client.SetBucketPolicy(ctx, g.cfg.Bucket, publicReadPolicy(g.cfg.Bucket)); err != nil {
			return &Error{Op: "set-policy", Key: g.cfg.Bucket, Err: err}
		}
	}
	return nil
}

// Upload stores a photo under routes/<routeID>/<fileName>, replacing any
// previous object with that key, and returns the key.
func (g *Gateway) Upload(ctx context.Context, routeID uint, fileName string, data []byte, contentType string) (string, error) {
	key := ObjectKey(routeID, fileName)
	if contentType == "" {
		contentType = defaultContentType
	}

	_, err := g.breaker.Execute(func() (minio.ObjectInfo, error) {
		info, err := g.client.PutObject(ctx, g.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: map[string]string{"Route-Id": strconv.FormatUint(uint64(routeID), 10)},
		})
		return minio.ObjectInfo{Key: info.Key, ETag: info.ETag, Size: info.Size}, err
	})
	if err != nil {
		return "", &Error{Op: "upload", Key: key, Err: err}
	}
	return key, nil
}

// Exists reports whether an object is stored under key.
func (g *Gateway) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.stat(ctx, key)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, &Error{Op: "stat", Key: key, Err: err}
}

// ResolveURL returns a URL a client can fetch the stored object from.
func (g *Gateway) ResolveURL(ctx context.Context, key string) (string, error) {
	if _, err := g.stat(ctx, key); err != nil {
		return "", &Error{Op: "stat", Key: key, Err: err}
	}

	if g.cfg.PublicURL != "" {
		return strings.TrimRight(g.cfg.PublicURL, "/") + "/" + g.cfg.Bucket + "/" + escapeKey(key), nil
	}

	u, err := g.client.PresignedGetObject(ctx, g.cfg.Bucket, key, g.cfg.URLTTL, url.Values{})
	if err != nil {
		return "", &Error{Op: "presign", Key: key, Err: err}
	}
	return u.String(), nil
}

func (g *Gateway) stat(ctx context.Context, key string) (minio.ObjectInfo, error) {
	return g.breaker.Execute(func() (minio.ObjectInfo, error) {
		return g.client.StatObject(ctx, g.cfg.Bucket, key, minio.StatObjectOptions{})
	})
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}
