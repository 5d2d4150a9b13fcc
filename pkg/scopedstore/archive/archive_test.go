// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewClient_NonExistentSAKeyPath(t *testing.T) {
	ctx := context.Background()
	_, err := NewClient(ctx, "test-bucket", "/nonexistent/path/to/key.json")
	if err == nil {
		t.Fatal("NewClient with non-existent SA key should return error")
	}
	if !strings.Contains(err.Error(), "service account key not found") {
		t.Errorf("error should mention SA key not found, got: %v", err)
	}
}

func TestNewClient_InvalidCredentialsFile(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()
	invalidKeyPath := filepath.Join(tmpDir, "invalid_key.json")
	if err := os.WriteFile(invalidKeyPath, []byte("not valid json"), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	_, err := NewClient(ctx, "test-bucket", invalidKeyPath)
	if err == nil {
		t.Fatal("NewClient with invalid credentials file should return error")
	}
	if !strings.Contains(err.Error(), "failed to create GCS storage client") {
		t.Errorf("error should mention failed client creation, got: %v", err)
	}
}

func TestClient_UploadFile_NonExistentLocalFile(t *testing.T) {
	client := &Client{storageClient: nil, bucketName: "test-bucket"}
	ctx := context.Background()
	err := client.UploadFile(ctx, "/nonexistent/file/path.txt", "dest/path.txt")
	if err == nil {
		t.Fatal("UploadFile with non-existent local file should return error")
	}
	if !strings.Contains(err.Error(), "failed to open local file") {
		t.Errorf("error should mention failed to open file, got: %v", err)
	}
}

func TestClient_UploadDir_NonExistentDirectory(t *testing.T) {
	client := &Client{storageClient: nil, bucketName: "test-bucket"}
	ctx := context.Background()
	err := client.UploadDir(ctx, "/nonexistent/directory/path", "dest/prefix")
	if err == nil {
		t.Fatal("UploadDir with non-existent directory should return error")
	}
}

func TestSnapshotNameIsDeterministicAndUTC(t *testing.T) {
	at := time.Date(2026, 7, 30, 12, 0, 0, 0, time.FixedZone("EDT", -4*3600))
	name := SnapshotName(at)
	if name != "snapshots/2026-07-30T16-00-00Z" {
		t.Errorf("SnapshotName = %q, want snapshots/2026-07-30T16-00-00Z", name)
	}
}

func TestNewClient_Integration(t *testing.T) {
	keyPath := os.Getenv("GCS_TEST_SA_KEY_PATH")
	bucketName := os.Getenv("GCS_TEST_BUCKET_NAME")
	if keyPath == "" || bucketName == "" {
		t.Skip("skipping integration test: GCS_TEST_SA_KEY_PATH and GCS_TEST_BUCKET_NAME not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, bucketName, keyPath)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test_upload.txt")
	if err := os.WriteFile(testFile, []byte("test content"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	if err := client.UploadFile(ctx, testFile, "test/integration_test_upload.txt"); err != nil {
		t.Errorf("UploadFile failed: %v", err)
	}
}
