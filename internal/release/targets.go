package release

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourceplane/flowci/internal/model"
	"github.com/sourceplane/flowci/internal/objectstore"
)

// DirTarget publishes artifacts into a local directory tree, one file per
// version: <dir>/<version>/<artifact name>. Used for local runs and tests.
type DirTarget struct {
	name string
	dir  string
}

// NewDirTarget creates a directory-backed target rooted at dir.
func NewDirTarget(name, dir string) *DirTarget {
	return &DirTarget{name: name, dir: dir}
}

func (t *DirTarget) Name() string { return t.name }

// Publish writes the artifact, honoring skip-existing by comparing the
// existing file's content byte for byte.
func (t *DirTarget) Publish(ctx context.Context, version string, art model.Artifact, skipExisting bool) (Outcome, error) {
	dir := filepath.Join(t.dir, version)
	path := filepath.Join(dir, art.Name)

	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if skipExisting && bytes.Equal(existing, art.Payload) {
			return OutcomeSkippedExisting, nil
		}
		return OutcomeFailed, &ConflictError{Target: t.name, Version: version, Name: art.Name}
	case os.IsNotExist(err):
	default:
		return OutcomeFailed, fmt.Errorf("failed to check existing version: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to create version directory: %w", err)
	}
	if err := os.WriteFile(path, art.Payload, 0o644); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to write artifact: %w", err)
	}
	return OutcomePublished, nil
}

// BucketTarget publishes artifacts to an S3-compatible bucket under
// <prefix>/<version>/<artifact name> keys. Skip-existing compares the
// stored object's ETag against the payload's MD5, so a byte-identical
// re-publish after a pipeline restart is a no-op.
type BucketTarget struct {
	name   string
	bucket *objectstore.Bucket
	prefix string
}

// NewBucketTarget creates an object-store-backed target.
func NewBucketTarget(name string, bucket *objectstore.Bucket, prefix string) *BucketTarget {
	return &BucketTarget{name: name, bucket: bucket, prefix: prefix}
}

func (t *BucketTarget) Name() string { return t.name }

func (t *BucketTarget) Publish(ctx context.Context, version string, art model.Artifact, skipExisting bool) (Outcome, error) {
	key := t.key(version, art.Name)

	etag, exists, err := t.bucket.Stat(ctx, key)
	if err != nil {
		return OutcomeFailed, err
	}
	if exists {
		sum := md5.Sum(art.Payload)
		if skipExisting && strings.Trim(etag, `"`) == hex.EncodeToString(sum[:]) {
			return OutcomeSkippedExisting, nil
		}
		return OutcomeFailed, &ConflictError{Target: t.name, Version: version, Name: art.Name}
	}

	if err := t.bucket.Put(ctx, key, art.Payload); err != nil {
		return OutcomeFailed, err
	}
	return OutcomePublished, nil
}

func (t *BucketTarget) key(version, name string) string {
	if t.prefix == "" {
		return version + "/" + name
	}
	return t.prefix + "/" + version + "/" + name
}
