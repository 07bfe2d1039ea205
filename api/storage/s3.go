// Package storage publishes anycast snapshots to an S3-compatible bucket as
// a JSON document and a zone file per domain.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"edgeroute/api/distribute"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

type Client struct {
	mc     *minio.Client
	config Config
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "edgeroute"
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &Client{mc: mc, config: cfg}, nil
}

// EnsureBucket creates the configured bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	name := c.config.Bucket
	exists, err := c.mc.BucketExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", name, err)
	}
	if exists {
		return nil
	}
	region := c.config.Region
	if region == "" {
		region = "us-east-1"
	}
	if err := c.mc.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", name, err)
	}
	slog.Info("s3: created bucket", "bucket", name)
	return nil
}

func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.mc.BucketExists(ctx, c.config.Bucket)
	return err
}

func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

func (c *Client) Name() string { return "s3" }

// ObjectKeys returns the JSON and zone object names for domain.
func ObjectKeys(domain string) (jsonKey, zoneKey string) {
	base := "anycast/" + strings.ToLower(domain)
	return base + ".json", base + ".zone"
}

// Publish uploads the snapshot document and, when it rendered, the zone.
func (c *Client) Publish(ctx context.Context, snap distribute.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	jsonKey, zoneKey := ObjectKeys(snap.Domain)
	if err := c.put(ctx, jsonKey, data, "application/json"); err != nil {
		return err
	}
	if snap.Zone == "" {
		return nil
	}
	return c.put(ctx, zoneKey, []byte(snap.Zone), "text/dns")
}

func (c *Client) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.mc.PutObject(ctx, c.config.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", c.config.Bucket, key, err)
	}
	return nil
}

var _ distribute.Publisher = (*Client)(nil)
