// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive exports periodic snapshots of a badgerstore data
// directory to Google Cloud Storage. It is optional: the core engine
// and badgerstore itself have no dependency on it, it is wired in only
// by deployments that want off-box backup of the durable store.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Client uploads a badgerstore data directory to a GCS bucket, mirroring
// the teacher's cmd/aleutian/gcs.Client upload flow.
type Client struct {
	storageClient *storage.Client
	bucketName    string
}

// NewClient opens a GCS client authenticated with the service account
// key at saKeyPath.
func NewClient(ctx context.Context, bucketName, saKeyPath string) (*Client, error) {
	if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("archive: service account key not found at path: %s", saKeyPath)
	}
	storageClient, err := storage.NewClient(ctx, option.WithCredentialsFile(saKeyPath))
	if err != nil {
		return nil, fmt.Errorf("archive: failed to create GCS storage client: %w", err)
	}
	return &Client{storageClient: storageClient, bucketName: bucketName}, nil
}

// Close releases the underlying GCS client.
func (c *Client) Close() error {
	return c.storageClient.Close()
}

// UploadFile copies a single local file to gcsPath in the bucket.
func (c *Client) UploadFile(ctx context.Context, localPath, gcsPath string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("archive: failed to open local file %s: %w", localPath, err)
	}
	defer localFile.Close()

	obj := c.storageClient.Bucket(c.bucketName).Object(gcsPath)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, localFile); err != nil {
		return fmt.Errorf("archive: failed to copy %s to %s: %w", localPath, gcsPath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("archive: failed to close GCS writer for %s: %w", gcsPath, err)
	}
	return nil
}

// UploadDir walks localDir and uploads every regular file under
// gcsPrefix, preserving relative paths so a restore can replay the
// directory structure badgerstore expects.
func (c *Client) UploadDir(ctx context.Context, localDir, gcsPrefix string) error {
	return filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		return c.UploadFile(ctx, path, filepath.Join(gcsPrefix, rel))
	})
}

// SnapshotName produces a timestamped GCS prefix for one snapshot run,
// e.g. "snapshots/2026-07-30T12-00-00Z". Timestamps are caller-supplied
// (not time.Now()) so snapshot scheduling stays under the same
// injected-clock discipline as the rest of the engine.
func SnapshotName(at time.Time) string {
	return "snapshots/" + at.UTC().Format("2006-01-02T15-04-05Z")
}
