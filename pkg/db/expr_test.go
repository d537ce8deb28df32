package db

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func dialectDB(d gorm.Dialector) *gorm.DB {
	return &gorm.DB{Config: &gorm.Config{Dialector: d}}
}

func TestKeyConcatExprPerDialect(t *testing.T) {
	require.Equal(t,
		"CONCAT('account:', CAST(i.account_id AS CHAR))",
		KeyConcatExpr(dialectDB(mysql.New(mysql.Config{})), "account:", "i.account_id"))

	require.Equal(t,
		"'account:' || CAST(i.account_id AS TEXT)",
		KeyConcatExpr(dialectDB(postgres.New(postgres.Config{})), "account:", "i.account_id"))

	require.Equal(t,
		"'event:' || CAST(e.id AS TEXT)",
		KeyConcatExpr(dialectDB(sqlite.Open(":memory:")), "event:", "e.id"))
}
