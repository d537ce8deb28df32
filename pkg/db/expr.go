package db

import "gorm.io/gorm"

// KeyConcatExpr renders "'<prefix>' || CAST(<column> AS TEXT)" for the
// active dialect. MySQL reads || as logical OR and has no TEXT cast, so it
// gets CONCAT with a CHAR cast instead.
func KeyConcatExpr(db *gorm.DB, prefix, column string) string {
	if db.Dialector.Name() == "mysql" {
		return "CONCAT('" + prefix + "', CAST(" + column + " AS CHAR))"
	}
	return "'" + prefix + "' || CAST(" + column + " AS TEXT)"
}
