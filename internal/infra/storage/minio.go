package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/pdaudit/internal/domain/audit"
)

const presignTTL = 7 * 24 * time.Hour

// Store archives finished reports and their page snapshot in a bucket.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
	log        *logrus.Entry
}

// New buat koneksi MinIO
func New(ctx context.Context, log *logrus.Entry, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region, log: log}, nil
}

// objectPrefix groups a report's objects by finish month.
func objectPrefix(r *audit.Report) string {
	ts := r.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return path.Join("reports", ts.UTC().Format("2006/01"), r.ID)
}

// Archive uploads report.json and, when present, snapshot.html, and returns
// a presigned link to the report.
func (s *Store) Archive(ctx context.Context, r *audit.Report) (string, error) {
	prefix := objectPrefix(r)
	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	reportKey := path.Join(prefix, "report.json")
	if err := s.put(ctx, reportKey, body, "application/json"); err != nil {
		return "", err
	}
	if r.Snapshot.HTML != "" {
		// the page copy is evidence, not essential
		if err := s.put(ctx, path.Join(prefix, "snapshot.html"), []byte(r.Snapshot.HTML), "text/html; charset=utf-8"); err != nil {
			s.log.WithError(err).WithField("report_id", r.ID).Warn("snapshot upload failed")
		}
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucketName, reportKey, presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", reportKey, err)
	}
	return u.String(), nil
}

func (s *Store) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
