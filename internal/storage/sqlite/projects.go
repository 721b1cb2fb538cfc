package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/types"
)

// SaveProjects replaces a job's detected projects in one transaction. Called
// once after clustering, and again if the reviewer re-runs detection.
func (s *SQLiteStorage) SaveProjects(ctx context.Context, jobID string, projects []types.DetectedProject) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM detected_projects WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to clear projects: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO detected_projects (
			id, job_id, name, reason, confidence, files, primary_path,
			confirmed, name_override, merged, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range projects {
		p := &projects[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid project %s: %w", p.Name, err)
		}
		files, err := json.Marshal(p.Files)
		if err != nil {
			return fmt.Errorf("failed to encode project files: %w", err)
		}
		primaryPath := ""
		if p.PrimaryFile != nil {
			primaryPath = p.PrimaryFile.Path
		}
		_, err = stmt.ExecContext(ctx,
			p.ID, jobID, p.Name, p.Reason, p.Confidence, string(files), primaryPath,
			p.Confirmed, p.NameOverride, p.Merged, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert project %s: %w", p.Name, err)
		}
	}
	return tx.Commit()
}

// GetProjects returns a job's detected projects
func (s *SQLiteStorage) GetProjects(ctx context.Context, jobID string) ([]types.DetectedProject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, reason, confidence, files, primary_path, confirmed, name_override, merged
		FROM detected_projects WHERE job_id = ?
		ORDER BY name ASC, id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []types.DetectedProject
	for rows.Next() {
		var p types.DetectedProject
		var files, primaryPath string
		err := rows.Scan(&p.ID, &p.Name, &p.Reason, &p.Confidence, &files,
			&primaryPath, &p.Confirmed, &p.NameOverride, &p.Merged)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		if err := json.Unmarshal([]byte(files), &p.Files); err != nil {
			return nil, fmt.Errorf("failed to decode project files: %w", err)
		}
		if primaryPath != "" {
			for i := range p.Files {
				if p.Files[i].Path == primaryPath {
					p.PrimaryFile = &p.Files[i]
					break
				}
			}
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject persists reviewer edits: rename, confirm, merge flag
func (s *SQLiteStorage) UpdateProject(ctx context.Context, jobID string, project *types.DetectedProject) error {
	files, err := json.Marshal(project.Files)
	if err != nil {
		return fmt.Errorf("failed to encode project files: %w", err)
	}
	primaryPath := ""
	if project.PrimaryFile != nil {
		primaryPath = project.PrimaryFile.Path
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE detected_projects
		SET name = ?, files = ?, primary_path = ?, confirmed = ?, name_override = ?, merged = ?
		WHERE id = ? AND job_id = ?
	`, project.Name, string(files), primaryPath, project.Confirmed,
		project.NameOverride, project.Merged, project.ID, jobID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check project update: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
