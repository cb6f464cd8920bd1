// Package storage archives generated exports in S3 compatible object storage.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

// ErrArchiveDisabled is returned by DownloadURL when no archive is configured.
var ErrArchiveDisabled = errors.New("export archive is not enabled")

// ErrInvalidKey is returned for keys outside the archive prefix.
var ErrInvalidKey = errors.New("invalid export archive key")

// ExportArchive stores export documents and hands out download links.
type ExportArchive interface {
	// Enabled reports whether Store actually persists anything.
	Enabled() bool
	// Store uploads body and returns its object key.
	Store(ctx context.Context, filename, contentType string, body []byte, now time.Time) (string, error)
	// DownloadURL presigns a GET for a key returned by Store.
	DownloadURL(ctx context.Context, key string) (string, time.Time, error)
}

// ArchiveKey lays objects out as prefix/YYYY/MM/DD/filename.
func ArchiveKey(prefix, filename string, now time.Time) string {
	return path.Join(prefix, now.Format("2006/01/02"), path.Base(filename))
}

// validKey accepts keys shaped like ArchiveKey output under prefix.
func validKey(prefix, key string) bool {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return false
	}
	return strings.HasPrefix(key, strings.TrimSuffix(prefix, "/")+"/")
}

// DisabledArchive is used when storage is turned off.
type DisabledArchive struct{}

// Enabled implements ExportArchive
func (DisabledArchive) Enabled() bool { return false }

// Store implements ExportArchive and keeps nothing.
func (DisabledArchive) Store(context.Context, string, string, []byte, time.Time) (string, error) {
	return "", nil
}

// DownloadURL implements ExportArchive
func (DisabledArchive) DownloadURL(context.Context, string) (string, time.Time, error) {
	return "", time.Time{}, ErrArchiveDisabled
}

var _ ExportArchive = DisabledArchive{}
