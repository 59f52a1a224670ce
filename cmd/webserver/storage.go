// SPDX-FileCopyrightText: 2024 SPI Tools contributors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const cacheBucket = "spi-tools"

// CaseCache keeps parsed SPI cases in S3-compatible object storage,
// so we do not need to fetch and parse big archive pages for every
// request. Objects are keyed by sock master and revision id; an edit
// to the case gives a new key, so entries never need invalidation.
type CaseCache struct {
	client  storageClient
	workdir string
}

// StorageClient is the subset of minio.Client used in this program.
// For testing, struct fakeStorageClient provides a fake implementation.
type storageClient interface {
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewCaseCache sets up a client for accessing S3-compatible object storage.
func NewCaseCache(keypath, workdir string) (*CaseCache, error) {
	if err := os.MkdirAll(workdir, 0755); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(keypath)
	if err != nil {
		return nil, err
	}

	var config struct{ Endpoint, Key, Secret string }
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.Key, config.Secret, ""),
		Secure: true,
	})
	if err != nil {
		return nil, err
	}

	client.SetAppInfo("SPIToolsWebserver", "0.1")
	return &CaseCache{client: client, workdir: workdir}, nil
}

func cacheKey(master string, revID int64) string {
	return fmt.Sprintf("cases/%s-%d.json.zst", url.PathEscape(master), revID)
}

// Get returns the cached case, or nil if the cache has no entry
// for this revision.
func (c *CaseCache) Get(ctx context.Context, master string, revID int64) (*Case, error) {
	if c == nil {
		return nil, nil
	}

	tmp, err := os.CreateTemp(c.workdir, "get-*.json.zst")
	if err != nil {
		return nil, err
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	key := cacheKey(master, revID)
	if err := c.client.FGetObject(ctx, cacheBucket, key, path, minio.GetObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var result Case
	if err := json.NewDecoder(dec).Decode(&result); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	if result.MasterName != master || result.RevID != revID {
		return nil, fmt.Errorf("corrupt cache entry %s: has %q at revision %d", key, result.MasterName, result.RevID)
	}
	return &result, nil
}

// Put stores a case in the cache.
func (c *CaseCache) Put(ctx context.Context, sc *Case) error {
	if c == nil {
		return nil
	}

	f, err := os.CreateTemp(c.workdir, "put-*.json.zst")
	if err != nil {
		return err
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	if err := json.NewEncoder(enc).Encode(sc); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	options := minio.PutObjectOptions{ContentType: "application/zstd"}
	_, err = c.client.FPutObject(ctx, cacheBucket, cacheKey(sc.MasterName, sc.RevID), tmpPath, options)
	return err
}
