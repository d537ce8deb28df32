package db

import "gorm.io/gorm"

// ClaimLockClause returns the row-claim suffix for the active dialect.
// SQLite has no row locks; its single-writer model already serializes
// claimants, so tests run with an empty clause.
func ClaimLockClause(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return " FOR UPDATE SKIP LOCKED"
	default:
		return ""
	}
}

// RowLockClause returns the plain row-lock suffix for the active dialect.
func RowLockClause(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return " FOR UPDATE"
	default:
		return ""
	}
}
