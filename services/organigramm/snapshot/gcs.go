// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"cloud.google.com/go/storage"
	"github.com/AleutianAI/troopsite/services/organigramm/datatypes"
	"google.golang.org/api/option"
)

// GCSConfig locates snapshot objects in Cloud Storage.
type GCSConfig struct {
	Bucket string

	// Prefix is prepended to every object name. Empty stores at the bucket root.
	Prefix string

	// CredentialsFile is a service-account key. Empty uses application
	// default credentials.
	CredentialsFile string
}

// objectStore is the slice of a bucket that GCSStore needs.
type objectStore interface {
	read(ctx context.Context, name string) ([]byte, error)
	write(ctx context.Context, name string, data []byte) error
	close() error
}

// GCSStore keeps one JSON object per root group: <prefix>/<id>.json.
//
// Thread Safety: Safe for concurrent use.
type GCSStore struct {
	objects objectStore
	prefix  string
}

// NewGCSStore connects to Cloud Storage.
//
// Description:
//
//	Creates a storage client using CredentialsFile when set, otherwise
//	application default credentials. No request is made until the first
//	Get or Put.
//
// Inputs:
//
//	ctx - Context for client construction.
//	cfg - Bucket, prefix and credentials. Bucket is required.
//
// Outputs:
//
//	*GCSStore - The store. Call Close when done.
//	error - Non-nil if the bucket is empty or the client cannot be built.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs snapshot store: bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &GCSStore{
		objects: &gcsBucket{client: client, bucket: cfg.Bucket},
		prefix:  cfg.Prefix,
	}, nil
}

func (s *GCSStore) objectName(rootGroupID int) string {
	return path.Join(s.prefix, strconv.Itoa(rootGroupID)+".json")
}

// Get downloads and decodes the snapshot object.
func (s *GCSStore) Get(ctx context.Context, rootGroupID int) (datatypes.Snapshot, error) {
	data, err := s.objects.read(ctx, s.objectName(rootGroupID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return datatypes.Snapshot{}, ErrNotFound
		}
		return datatypes.Snapshot{}, fmt.Errorf("read snapshot %d: %w", rootGroupID, err)
	}

	var snap datatypes.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("decode snapshot %d: %w", rootGroupID, err)
	}
	return snap, nil
}

// Put uploads the snapshot, replacing any previous object.
func (s *GCSStore) Put(ctx context.Context, rootGroupID, maxDepth int, tree datatypes.Node) (datatypes.Snapshot, error) {
	snap := newSnapshot(rootGroupID, maxDepth, tree)
	data, err := json.Marshal(snap)
	if err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("encode snapshot %d: %w", rootGroupID, err)
	}
	if err := s.objects.write(ctx, s.objectName(rootGroupID), data); err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("write snapshot %d: %w", rootGroupID, err)
	}
	return snap, nil
}

func (s *GCSStore) Close() error {
	return s.objects.close()
}

// gcsBucket is the storage.Client backed objectStore.
type gcsBucket struct {
	client *storage.Client
	bucket string
}

func (b *gcsBucket) read(ctx context.Context, name string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *gcsBucket) write(ctx context.Context, name string, data []byte) error {
	w := b.client.Bucket(b.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-store"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (b *gcsBucket) close() error {
	return b.client.Close()
}
