// Package ota implements the device simulator's firmware-check command:
// fetching a versioned manifest from S3 and reporting whether a newer
// firmware build is available (§6's OTA_BUCKET/OTA_MANIFEST_KEY target).
package ota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Manifest describes one published firmware build.
type Manifest struct {
	Version   string `json:"version"`
	BuildID   string `json:"build_id"`
	URL       string `json:"url"`
	Checksum  string `json:"checksum"`
	Published string `json:"published"`
}

// S3API is the narrow subset of *s3.Client the checker needs, so tests can
// substitute a fake GetObject without a live bucket.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Checker fetches and parses the firmware manifest from a configured
// bucket/key.
type Checker struct {
	client S3API
	bucket string
	key    string
}

func NewChecker(client S3API, bucket, key string) *Checker {
	return &Checker{client: client, bucket: bucket, key: key}
}

// Fetch downloads and decodes the manifest object.
func (c *Checker) Fetch(ctx context.Context) (Manifest, error) {
	if c.bucket == "" || c.key == "" {
		return Manifest{}, fmt.Errorf("ota: bucket/key not configured")
	}
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &c.key,
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("ota: fetch manifest: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return Manifest{}, fmt.Errorf("ota: read manifest body: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return Manifest{}, fmt.Errorf("ota: decode manifest: %w", err)
	}
	return m, nil
}

// NeedsUpdate reports whether current differs from the manifest's published
// version, a plain string comparison since builds are opaque version tags
// rather than semver the checker needs to order.
func (m Manifest) NeedsUpdate(current string) bool {
	return current != m.Version
}
