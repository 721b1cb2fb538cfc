package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/types"
)

const designFileColumns = `id, design_id, storage_path, file_type, size_bytes,
       content_hash, preview_phash, source_path, version_number, is_active, created_at`

// FindFileByContentHash is the exact-duplicate lookup
func (s *SQLiteStorage) FindFileByContentHash(ctx context.Context, hash string) (*types.DesignFile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+designFileColumns+` FROM design_files WHERE content_hash = ?`, hash)
	file, err := scanDesignFile(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find file by hash: %w", err)
	}
	return file, nil
}

// ListPhashedFiles returns every stored file carrying a perceptual hash.
// Seeds the in-memory near-duplicate index at orchestrator startup.
func (s *SQLiteStorage) ListPhashedFiles(ctx context.Context) ([]*types.DesignFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+designFileColumns+` FROM design_files WHERE preview_phash != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to list phashed files: %w", err)
	}
	defer rows.Close()

	var files []*types.DesignFile
	for rows.Next() {
		file, err := scanDesignFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan design file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// FindActiveFileBySourcePath supports version tracking across re-imports
func (s *SQLiteStorage) FindActiveFileBySourcePath(ctx context.Context, sourcePath string) (*types.DesignFile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+designFileColumns+` FROM design_files
		WHERE source_path = ? AND is_active = 1
		ORDER BY version_number DESC LIMIT 1
	`, sourcePath)
	file, err := scanDesignFile(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find file by source path: %w", err)
	}
	return file, nil
}

// CreateDesign inserts a new design
func (s *SQLiteStorage) CreateDesign(ctx context.Context, design *types.Design) error {
	now := time.Now().UTC()
	design.CreatedAt = now
	design.UpdatedAt = now

	metadata, err := json.Marshal(design.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO designs (
			id, slug, title, description, preview_path, metadata,
			is_public, current_version_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		design.ID, design.Slug, design.Title, design.Description, design.PreviewPath,
		string(metadata), design.IsPublic, design.CurrentVersionID,
		design.CreatedAt, design.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "designs.slug") {
			return fmt.Errorf("slug %s already taken: %w", design.Slug, storage.ErrConflict)
		}
		return fmt.Errorf("failed to insert design: %w", err)
	}
	return nil
}

// GetDesign retrieves a design by ID
func (s *SQLiteStorage) GetDesign(ctx context.Context, id string) (*types.Design, error) {
	return s.getDesign(ctx, `id = ?`, id)
}

// GetDesignBySlug retrieves a design by its URL slug
func (s *SQLiteStorage) GetDesignBySlug(ctx context.Context, slug string) (*types.Design, error) {
	return s.getDesign(ctx, `slug = ?`, slug)
}

func (s *SQLiteStorage) getDesign(ctx context.Context, where string, arg interface{}) (*types.Design, error) {
	var design types.Design
	var metadata string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, title, description, preview_path, metadata,
		       is_public, current_version_id, created_at, updated_at
		FROM designs WHERE `+where, arg).Scan(
		&design.ID, &design.Slug, &design.Title, &design.Description, &design.PreviewPath,
		&metadata, &design.IsPublic, &design.CurrentVersionID,
		&design.CreatedAt, &design.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get design: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &design.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &design, nil
}

// CreateDesignFile inserts a stored file version. The unique index on
// content_hash is the authoritative duplicate gate: a second insert of the
// same bytes returns ErrDuplicateHash no matter what the in-memory index saw.
func (s *SQLiteStorage) CreateDesignFile(ctx context.Context, file *types.DesignFile) error {
	file.CreatedAt = time.Now().UTC()
	if file.VersionNumber == 0 {
		file.VersionNumber = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO design_files (
			id, design_id, storage_path, file_type, size_bytes,
			content_hash, preview_phash, source_path, version_number, is_active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		file.ID, file.DesignID, file.StoragePath, file.FileType, file.SizeBytes,
		file.ContentHash, file.PreviewPhash, file.SourcePath, file.VersionNumber,
		file.IsActive, file.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "design_files.content_hash") {
			return storage.ErrDuplicateHash
		}
		return fmt.Errorf("failed to insert design file: %w", err)
	}
	return nil
}

// SetCurrentVersion points a design at fileID and deactivates its other versions
func (s *SQLiteStorage) SetCurrentVersion(ctx context.Context, designID, fileID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE design_files SET is_active = (id = ?) WHERE design_id = ?
	`, fileID, designID)
	if err != nil {
		return fmt.Errorf("failed to update file versions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check version update: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE designs SET current_version_id = ?, updated_at = ? WHERE id = ?
	`, fileID, time.Now().UTC(), designID)
	if err != nil {
		return fmt.Errorf("failed to update design version pointer: %w", err)
	}
	return tx.Commit()
}

func scanDesignFile(r rowScanner) (*types.DesignFile, error) {
	var file types.DesignFile
	err := r.Scan(
		&file.ID, &file.DesignID, &file.StoragePath, &file.FileType, &file.SizeBytes,
		&file.ContentHash, &file.PreviewPhash, &file.SourcePath, &file.VersionNumber,
		&file.IsActive, &file.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &file, nil
}
