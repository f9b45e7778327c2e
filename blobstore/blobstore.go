// Package blobstore implements BlobStore (spec.md section 4.4) over a
// TileDB VFS handle, the same abstraction the teacher repo (go-gsf) uses to
// address "a local filesystem or an object store such as S3" through one
// Open/Read/Write API (see file.go's OpenGSF and json.go's WriteJson).
package blobstore

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	tiledb "github.com/TileDB-Inc/TileDB-Go"

	"github.com/ridelines/drivetrain"
)

// BlobStore is an object-store adapter rooted at a single bucket URI
// (e.g. "s3://my-bucket" or a local directory). get/put/put_stream are
// atomic from a reader's perspective: a write fully replaces the prior
// object or the prior object remains, never a partial blend.
type BlobStore struct {
	ctx    *tiledb.Context
	vfs    *tiledb.VFS
	config *tiledb.Config
	bucket string
}

// New opens a BlobStore rooted at bucketURI. configURI points to an
// optional TileDB config file carrying object-store credentials/region;
// an empty configURI gets a generic config, matching the teacher's
// "get a generic config if no path provided" idiom used throughout
// file.go/json.go/search.go.
func New(bucketURI, configURI string) (*BlobStore, error) {
	var (
		config *tiledb.Config
		err    error
	)
	if configURI == "" {
		config, err = tiledb.NewConfig()
	} else {
		config, err = tiledb.LoadConfig(configURI)
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: config: %w", err)
	}

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		config.Free()
		return nil, fmt.Errorf("blobstore: context: %w", err)
	}

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		ctx.Free()
		config.Free()
		return nil, fmt.Errorf("blobstore: vfs: %w", err)
	}

	return &BlobStore{
		ctx:    ctx,
		vfs:    vfs,
		config: config,
		bucket: strings.TrimRight(bucketURI, "/"),
	}, nil
}

// Close releases the underlying TileDB handles. Every exit path of a run
// must reach this, matching the teacher's pervasive defer-Free idiom.
func (b *BlobStore) Close() {
	b.vfs.Free()
	b.ctx.Free()
	b.config.Free()
}

func (b *BlobStore) uri(key string) string {
	return b.bucket + "/" + key
}

// Get reads the object at key, or returns drivetrain.ErrNotFound if absent.
func (b *BlobStore) Get(key string) ([]byte, error) {
	uri := b.uri(key)

	exists, err := b.vfs.IsFile(uri)
	if err != nil {
		return nil, fmt.Errorf("blobstore: stat %s: %w", key, err)
	}
	if !exists {
		return nil, drivetrain.ErrNotFound
	}

	handle, err := b.vfs.Open(uri, tiledb.TILEDB_VFS_READ)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", key, err)
	}
	defer handle.Close()

	data, err := io.ReadAll(handle)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", key, err)
	}

	return data, nil
}

// Put writes data to key, fully replacing any prior object at that key.
func (b *BlobStore) Put(key string, data []byte) error {
	return b.PutStream(key, bytes.NewReader(data))
}

// PutStream streams r to key without buffering it fully into memory first,
// the form SyncEngine uses for the composed archive (spec.md section 4.5,
// Phase IV).
func (b *BlobStore) PutStream(key string, r io.Reader) error {
	uri := b.uri(key)

	handle, err := b.vfs.Open(uri, tiledb.TILEDB_VFS_WRITE)
	if err != nil {
		return fmt.Errorf("blobstore: open %s for write: %w", key, err)
	}
	defer handle.Close()

	if _, err := io.Copy(handle, r); err != nil {
		return fmt.Errorf("blobstore: write %s: %w", key, err)
	}

	return nil
}
