package storage

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"news-faces/config"
	"news-faces/models"
)

// OpenDatabase öffnet die Datenbank gemäß DB_DRIVER (postgres oder sqlite).
func OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// Migrate legt die Tabellen inklusive der Unique-Indizes an.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Person{}, &models.Article{}, &models.PersonArticle{})
}

// ClearAll löscht alle Verknüpfungen, Artikel und Personen.
func ClearAll(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"person_articles", "articles", "people"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}
