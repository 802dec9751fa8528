package config

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"drone_routes/internal/objectstore"
)

// InitStorage builds the photo gateway and makes sure the bucket exists.
func InitStorage(ctx context.Context, s Settings) (*objectstore.Gateway, error) {
	gw, err := objectstore.New(objectstore.Config{
		Endpoint:  s.StorageEndpoint,
		AccessKey: s.StorageAccessKey,
		SecretKey: s.StorageSecretKey,
		UseSSL:    s.StorageUseSSL,
		Bucket:    s.StorageBucket,
		Region:    s.StorageRegion,
		PublicURL: s.StoragePublicURL,
		URLTTL:    s.StorageURLTTL,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := gw.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"endpoint": s.StorageEndpoint,
		"bucket":   gw.Bucket(),
	}).Info("Object storage ready")
	return gw, nil
}
