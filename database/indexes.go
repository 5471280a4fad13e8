package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
)

// DatabaseIndex представляет индекс базы данных
type DatabaseIndex struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	Type    string // btree, brin
	Where   string // частичный индекс
}

// PerformanceIndexes индексы PostgreSQL, которые не выражаются тегами gorm
var PerformanceIndexes = []DatabaseIndex{
	{
		Name:    "idx_tracking_devices_active_fix",
		Table:   "tracking_devices",
		Columns: []string{"config_id", "name"},
		Type:    "btree",
		Where:   "is_active AND (latitude <> 0 OR longitude <> 0)",
	},
	{
		Name:    "idx_location_records_position_time_brin",
		Table:   "location_records",
		Columns: []string{"position_time"},
		Type:    "brin",
	},
	{
		Name:    "idx_integration_errors_pending",
		Table:   "integration_errors",
		Columns: []string{"config_id", "device_ref"},
		Type:    "btree",
		Where:   "status = 'pending' AND deleted_at IS NULL",
	},
}

// BuildIndexSQL формирует CREATE INDEX для индекса
func BuildIndexSQL(index DatabaseIndex) string {
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}

	method := index.Type
	if method == "" {
		method = "btree"
	}

	sql := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s USING %s (%s)",
		unique, index.Name, index.Table, method, strings.Join(index.Columns, ", "))

	if index.Where != "" {
		sql += " WHERE " + index.Where
	}

	return sql
}

// CreatePerformanceIndexes создает дополнительные индексы
func CreatePerformanceIndexes(db *gorm.DB) error {
	for _, index := range PerformanceIndexes {
		if err := db.Exec(BuildIndexSQL(index)).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", index.Name, err)
		}
	}

	log.Printf("✅ Создано индексов: %d", len(PerformanceIndexes))
	return nil
}
