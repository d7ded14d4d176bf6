package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrObjectNotFound is returned when no file exists at the key.
var ErrObjectNotFound = errors.New("object not found")

// Metadata describes an uploaded file.
type Metadata struct {
	ContentType  string            `json:"contentType,omitempty"`
	OriginalName string            `json:"originalName,omitempty"`
	UploadedBy   int64             `json:"uploadedBy,omitempty"`
	UploadedAt   time.Time         `json:"uploadedAt,omitempty"`
	Custom       map[string]string `json:"custom,omitempty"`
}

// FileInfo contains information about a stored file
type FileInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	ContentType string    `json:"contentType,omitempty"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// Storage holds banner image files and store snapshots.
// Implementations are the local filesystem and S3-compatible object storage.
type Storage interface {
	// Put stores content at the given key with optional metadata
	Put(ctx context.Context, key string, content []byte, metadata *Metadata) error

	// Get retrieves content from the given key
	Get(ctx context.Context, key string) ([]byte, error)

	// GetInfo retrieves file information without content
	GetInfo(ctx context.Context, key string) (*FileInfo, error)

	Exists(ctx context.Context, key string) (bool, error)

	Delete(ctx context.Context, key string) error

	// List returns all keys matching the given prefix
	List(ctx context.Context, prefix string) ([]string, error)

	GetChecksum(ctx context.Context, key string) (string, error)
}

// StorageType represents the type of storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// Options selects and configures a backend.
type Options struct {
	Type     StorageType
	BasePath string
	S3       S3Config
}

// Open creates the backend named by opts.Type.
func Open(ctx context.Context, opts Options) (Storage, error) {
	switch opts.Type {
	case StorageTypeLocal, "":
		return NewLocalStorage(opts.BasePath)
	case StorageTypeS3:
		return NewS3Storage(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("unknown storage type %q", opts.Type)
	}
}

// BuildImageKey builds the key of an uploaded image version file.
func BuildImageKey(imageID int64, uploadID, filename string) string {
	return fmt.Sprintf("images/%d/%s-%s", imageID, uploadID, sanitizeFilename(filename))
}

// BuildUploadKey builds the key of a file uploaded before its image exists.
func BuildUploadKey(uploadID, filename string) string {
	return fmt.Sprintf("uploads/%s-%s", uploadID, sanitizeFilename(filename))
}

// BuildImportKey builds the key of an image file uploaded with a bulk import.
func BuildImportKey(runID, filename string) string {
	return fmt.Sprintf("imports/%s/%s", runID, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return strings.ReplaceAll(name, " ", "_")
}
