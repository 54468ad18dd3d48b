package tokenstore

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/campusadmin/internal/crypto"
	"github.com/mrlokans/campusadmin/internal/entities"
)

var tokenKeys = []string{entities.AccessTokenKey, entities.RefreshTokenKey}

// DurableScope stores the pair as two sealed rows in SQLite.
type DurableScope struct {
	db     *gorm.DB
	sealer *crypto.Sealer
}

// Config holds configuration for the durable scope
type Config struct {
	// DatabasePath is the path to the SQLite database file
	DatabasePath string

	// EncryptionKey is the base64-encoded 32-byte key.
	// If empty, will try to load from environment or key file
	EncryptionKey string

	// KeyFilePath defaults to ~/.campusadmin-token-key
	KeyFilePath string
}

// OpenDurableScope opens (and migrates) the SQLite file named in cfg.
func OpenDurableScope(cfg Config) (*DurableScope, error) {
	key, err := resolveEncryptionKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve encryption key: %w", err)
	}

	sealer, err := crypto.NewSealerFromBase64(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create sealer: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&entities.StoredToken{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DurableScope{db: db, sealer: sealer}, nil
}

func (s *DurableScope) Kind() Kind { return KindDurable }

func (s *DurableScope) Read() (*entities.TokenPair, error) {
	var rows []entities.StoredToken
	if err := s.db.Where("name IN ?", tokenKeys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read tokens: %w", err)
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		plain, err := s.sealer.Open(row.Name, row.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %s: %w", row.Name, err)
		}
		values[row.Name] = plain
	}

	pair := entities.TokenPair{
		AccessToken:  values[entities.AccessTokenKey],
		RefreshToken: values[entities.RefreshTokenKey],
	}
	if pair.IsZero() {
		return nil, nil
	}
	return &pair, nil
}

func (s *DurableScope) Write(pair entities.TokenPair) error {
	access, err := s.sealer.Seal(entities.AccessTokenKey, pair.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := s.sealer.Seal(entities.RefreshTokenKey, pair.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	rows := []entities.StoredToken{
		{Name: entities.AccessTokenKey, Value: access},
		{Name: entities.RefreshTokenKey, Value: refresh},
	}

	// Both rows in one transaction so readers never see half a pair
	err = s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

func (s *DurableScope) Erase() error {
	if err := s.db.Where("name IN ?", tokenKeys).Delete(&entities.StoredToken{}).Error; err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *DurableScope) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
