package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/nzlov/roomsync/docs"
)

type Docs struct {
	db *gorm.DB
}

// CreateDocument inserts a document row; used when seeding and in tests.
func (s *Docs) CreateDocument(ctx context.Context, d docs.Document) error {
	row := Doc{ID: d.ID, DocumentTitle: d.Title, Content: d.Content, Cover: d.Cover}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *Docs) Document(ctx context.Context, id string) (docs.Document, error) {
	var row Doc
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return docs.Document{}, notFound(err, "document "+id)
	}
	return docs.Document{ID: row.ID, Title: row.DocumentTitle, Content: row.Content, Cover: row.Cover}, nil
}

func (s *Docs) UpdateContent(ctx context.Context, id, content string) error {
	return s.update(ctx, id, "content", content)
}

func (s *Docs) UpdateTitle(ctx context.Context, id, title string) error {
	return s.update(ctx, id, "document_title", title)
}

func (s *Docs) UpdateCover(ctx context.Context, id, cover string) error {
	return s.update(ctx, id, "cover", cover)
}

func (s *Docs) update(ctx context.Context, id, column, value string) error {
	res := s.db.WithContext(ctx).Model(new(Doc)).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update document %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update document %s: %w", id, ErrNotFound)
	}
	return nil
}
