package database

import (
	"fmt"

	"github.com/skyvault/backend/internal/config"
	"github.com/skyvault/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := addPostgresConstraints(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Folder{},
		&models.File{},
		&models.PublicLink{},
		&models.DirectGrant{},
	)
}

// addPostgresConstraints installs backstops AutoMigrate cannot express:
// a single active public link per (file, owner), root-level folder name
// uniqueness (the composite unique index does not fire when parent_id is
// NULL because SQL treats NULLs as distinct), and one live direct grant per
// (file, owner, recipient) with rejected rows exempt.
func addPostgresConstraints(db *gorm.DB) error {
	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_public_links_active
		   ON public_links (file_id, owner_id) WHERE is_active`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_folders_owner_root_name
		   ON folders (owner_id, name) WHERE parent_id IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_grants_live
		   ON direct_grants (file_id, owner_id, recipient_id) WHERE status <> 'rejected'`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
