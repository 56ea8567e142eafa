// Package postgres stores knowledge base documents maintained outside the
// repository's markdown tree, such as operator-curated runbooks.
package postgres

import (
	"context"
	"fmt"

	"github.com/OwonaMedia/support-engine/internal/knowledge"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads and writes the knowledge_documents table.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListAll returns every stored document, oldest first.
func (r *Repository) ListAll(ctx context.Context) ([]knowledge.Document, error) {
	query := `
		SELECT path, title, content
		FROM knowledge_documents
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list knowledge documents: %w", err)
	}
	defer rows.Close()

	var docs []knowledge.Document
	for rows.Next() {
		var doc knowledge.Document
		if err := rows.Scan(&doc.Path, &doc.Title, &doc.Content); err != nil {
			return nil, fmt.Errorf("scan knowledge document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge documents: %w", err)
	}
	return docs, nil
}

// Upsert stores a document, replacing any existing row with the same path.
func (r *Repository) Upsert(ctx context.Context, doc knowledge.Document) error {
	query := `
		INSERT INTO knowledge_documents (path, title, content)
		VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE
		SET title = EXCLUDED.title, content = EXCLUDED.content, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, doc.Path, doc.Title, doc.Content); err != nil {
		return fmt.Errorf("upsert knowledge document: %w", err)
	}
	return nil
}
