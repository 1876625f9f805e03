package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// ColumnInfo matches the output of SHOW COLUMNS.
type ColumnInfo struct {
	Field   string
	Type    string
	Null    string
	Key     string
	Default *string // NULL default is possible
	Extra   string
}

// defaultGenerated marks a default computed by an expression.
const defaultGenerated = "DEFAULT_GENERATED"

// Nullable reports whether the column accepts NULL.
func (c ColumnInfo) Nullable() bool {
	return strings.EqualFold(c.Null, "YES")
}

// IsNumeric reports whether the column holds numbers.
func (c ColumnInfo) IsNumeric() bool {
	for _, t := range []string{"int", "dec", "float", "double", "real", "numeric", "bit"} {
		if strings.Contains(c.Type, t) {
			return true
		}
	}
	return false
}

// LiteralDefault returns the constant default of the column. Columns without
// a default or with a computed one such as CURRENT_TIMESTAMP report false.
func (c ColumnInfo) LiteralDefault() (string, bool) {
	if c.Default == nil || strings.Contains(strings.ToUpper(c.Extra), defaultGenerated) {
		return "", false
	}
	d := strings.ToUpper(*c.Default)
	if strings.HasPrefix(d, "CURRENT_") || strings.HasPrefix(d, "NOW(") {
		return "", false
	}
	return *c.Default, true
}

// sqliteDefault converts a PRAGMA table_info default expression into the
// SHOW COLUMNS form: string literals unquoted, expressions flagged.
func sqliteDefault(expr *string) (*string, string) {
	if expr == nil || strings.EqualFold(*expr, "NULL") {
		return nil, ""
	}
	v := *expr
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		unquoted := strings.ReplaceAll(v[1:len(v)-1], "''", "'")
		return &unquoted, ""
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return &v, ""
	}
	return &v, defaultGenerated
}

// GetTableColumns retrieves the column definitions for a given table.
// Field keeps the database's spelling; Type is lower-cased. A missing sqlite
// table yields no columns and no error.
func GetTableColumns(ctx context.Context, db *gorm.DB, tableName string) ([]ColumnInfo, error) {
	var columns []ColumnInfo
	db = db.WithContext(ctx)

	if db.Dialector.Name() == "sqlite" {
		type sqliteColumn struct {
			Cid       int
			Name      string
			Type      string
			Notnull   int
			DfltValue *string
			Pk        int
		}
		var sqliteCols []sqliteColumn
		if err := db.Raw(fmt.Sprintf("PRAGMA table_info('%s')", tableName)).Scan(&sqliteCols).Error; err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
		}
		for _, col := range sqliteCols {
			info := ColumnInfo{
				Field: col.Name,
				Type:  strings.ToLower(col.Type),
				Null:  "YES",
			}
			info.Default, info.Extra = sqliteDefault(col.DfltValue)
			if col.Notnull == 1 {
				info.Null = "NO"
			}
			if col.Pk > 0 {
				info.Key = "PRI"
			}
			columns = append(columns, info)
		}
		return columns, nil
	}

	err := db.Raw(fmt.Sprintf("SHOW COLUMNS FROM `%s`", tableName)).Scan(&columns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
	}
	for i := range columns {
		columns[i].Type = strings.ToLower(columns[i].Type)
	}
	return columns, nil
}
