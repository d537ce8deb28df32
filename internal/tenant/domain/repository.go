package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	Update(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Tenant, error)
	List(ctx context.Context, db *gorm.DB) ([]Tenant, error)

	InsertMember(ctx context.Context, db *gorm.DB, member *Member) error
	UpdateMemberRole(ctx context.Context, db *gorm.DB, orgID snowflake.ID, userID, role string) error
	FindMember(ctx context.Context, db *gorm.DB, orgID snowflake.ID, userID string) (*Member, error)
	ListMembers(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Member, error)
}
