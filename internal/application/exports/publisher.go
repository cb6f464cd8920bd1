// Package exports renders report tables into documents and archives them.
package exports

import (
	"context"
	"time"

	"github.com/flexidesk/backend/internal/infrastructure/export"
	"github.com/flexidesk/backend/internal/infrastructure/logger"
	"github.com/flexidesk/backend/internal/infrastructure/storage"
	"go.uber.org/zap"
)

// Publisher turns tables into downloadable documents.
type Publisher struct {
	archive storage.ExportArchive
	now     func() time.Time
}

// NewPublisher creates a publisher. A nil archive disables archiving.
func NewPublisher(archive storage.ExportArchive) *Publisher {
	if archive == nil {
		archive = storage.DisabledArchive{}
	}
	return &Publisher{archive: archive, now: time.Now}
}

// Publish renders t as "<base>-YYYY-MM-DD.<ext>". When archiving is enabled
// the document is uploaded too; an upload failure is logged and the document
// is still returned without a key.
func (p *Publisher) Publish(ctx context.Context, t *export.Table, format export.Format, base string) (*export.Document, error) {
	now := p.now()
	doc, err := export.Render(t, format, base, now)
	if err != nil {
		return nil, err
	}
	if !p.archive.Enabled() {
		return doc, nil
	}

	key, err := p.archive.Store(ctx, doc.Filename, doc.ContentType, doc.Body, now)
	if err != nil {
		logger.For(ctx).Warn("Failed to archive export",
			zap.String("filename", doc.Filename),
			zap.Error(err),
		)
		return doc, nil
	}
	doc.ArchiveKey = key
	return doc, nil
}

// DownloadURL is a presigned link for an archived document.
type DownloadURL struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DownloadURL presigns a download for key.
func (p *Publisher) DownloadURL(ctx context.Context, key string) (*DownloadURL, error) {
	url, expiresAt, err := p.archive.DownloadURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &DownloadURL{Key: key, URL: url, ExpiresAt: expiresAt}, nil
}
