package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/internal/pushnotify/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, endpoint *domain.PushEndpoint) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO push_endpoints (id, org_id, url, secret, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		endpoint.ID,
		endpoint.OrgID,
		endpoint.URL,
		endpoint.Secret,
		endpoint.Active,
		endpoint.CreatedAt,
		endpoint.UpdatedAt,
	).Error
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE push_endpoints SET active = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE org_id = ? AND id = ? AND active = ?`,
		false,
		orgID,
		id,
		true,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.PushEndpoint, error) {
	var endpoints []domain.PushEndpoint
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, url, secret, active, created_at, updated_at
		 FROM push_endpoints
		 WHERE org_id = ? AND active = ?
		 ORDER BY created_at ASC, id ASC`,
		orgID,
		true,
	).Scan(&endpoints).Error
	if err != nil {
		return nil, err
	}
	return endpoints, nil
}
