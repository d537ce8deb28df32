package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/internal/billingevent/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.BillingEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_events (id, org_id, event_type, payload, dedupe_key, published, published_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.OrgID,
		event.EventType,
		event.Payload,
		event.DedupeKey,
		event.Published,
		event.PublishedAt,
		event.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.BillingEvent, error) {
	var event domain.BillingEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, event_type, payload, dedupe_key, published, published_at, created_at
		 FROM billing_events WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}

func (r *repo) MarkPublished(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_events SET published = ?, published_at = CURRENT_TIMESTAMP
		 WHERE org_id = ? AND id = ?`,
		true,
		orgID,
		id,
	).Error
}

func (r *repo) ListUnpublished(ctx context.Context, db *gorm.DB, orgID snowflake.ID, limit int) ([]domain.BillingEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []domain.BillingEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, event_type, payload, dedupe_key, published, published_at, created_at
		 FROM billing_events
		 WHERE org_id = ? AND published = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		orgID,
		false,
		limit,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
