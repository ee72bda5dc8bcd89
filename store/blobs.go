package store

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Blobs keeps uploaded files in the database and hands out public URLs that
// the relay node serves under /blobs/.
type Blobs struct {
	db        *gorm.DB
	bucket    string
	publicURL string
}

func NewBlobs(db *gorm.DB, bucket, publicURL string) *Blobs {
	return &Blobs{db: db, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

// Upload stores r under key inside the bucket and returns the blob path.
// Uploading the same key twice replaces the content.
func (b *Blobs) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	key = strings.TrimLeft(trimmed(key), "/")
	if key == "" {
		return "", fmt.Errorf("upload: empty key")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("upload %s: read: %w", key, err)
	}
	blob := Blob{
		Path:        path.Join(b.bucket, key),
		Bucket:      b.bucket,
		ContentType: contentType,
		Data:        data,
	}
	if err := b.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&blob).Error; err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return blob.Path, nil
}

func (b *Blobs) PublicURL(p string) string {
	return b.publicURL + "/blobs/" + strings.TrimLeft(p, "/")
}

func (b *Blobs) Get(ctx context.Context, p string) (Blob, error) {
	var blob Blob
	if err := b.db.WithContext(ctx).First(&blob, "path = ?", strings.TrimLeft(p, "/")).Error; err != nil {
		return Blob{}, notFound(err, "blob "+p)
	}
	return blob, nil
}
