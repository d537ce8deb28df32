package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duno/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListPaymentFilter struct {
	AccountID snowflake.ID
	Status    PaymentStatus
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payment, error)
	FindLatestByAccount(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID) (*Payment, error)
	CountAttempts(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) (int, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListPaymentFilter, page pagination.Pagination) ([]*Payment, error)
}
