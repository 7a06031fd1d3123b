package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"market_stream/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage persists the local watchlist and user settings in SQLite
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the database at path. An empty path resolves
// to the per-user config directory.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		p, err := getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		path = p
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.WatchlistEntry{}, &domain.AppConfig{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "MarketStream", "data", "watchlist.db"), nil
}

// Close releases the underlying connection
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Watchlist Operations
// ======================================================================================

// AddSymbols stores symbols not yet in the watchlist and returns those added.
// Existing entries keep their name and favorite flag.
func (s *Storage) AddSymbols(symbols []string) ([]string, error) {
	symbols = domain.NormalizeSymbols(symbols)
	if len(symbols) == 0 {
		return symbols, nil
	}

	now := time.Now()
	added := make([]string, 0, len(symbols))
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, sym := range symbols {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.WatchlistEntry{
				Symbol:    sym,
				AddedAt:   now,
				UpdatedAt: now,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				added = append(added, sym)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveSymbols deletes symbols from the watchlist
func (s *Storage) RemoveSymbols(symbols []string) error {
	symbols = domain.NormalizeSymbols(symbols)
	if len(symbols) == 0 {
		return nil
	}
	return s.db.Where("symbol IN ?", symbols).Delete(&domain.WatchlistEntry{}).Error
}

// ListSymbols returns every stored symbol sorted
func (s *Storage) ListSymbols() ([]string, error) {
	var symbols []string
	err := s.db.Model(&domain.WatchlistEntry{}).Order("symbol").Pluck("symbol", &symbols).Error
	if symbols == nil {
		symbols = []string{}
	}
	return symbols, err
}

// ListEntries returns all entries, favorites first
func (s *Storage) ListEntries() ([]domain.WatchlistEntry, error) {
	var entries []domain.WatchlistEntry
	err := s.db.Order("is_favorite DESC").Order("symbol").Find(&entries).Error
	return entries, err
}

// GetEntry retrieves an entry by symbol
func (s *Storage) GetEntry(symbol string) (*domain.WatchlistEntry, error) {
	var entry domain.WatchlistEntry
	err := s.db.First(&entry, "symbol = ?", domain.NormalizeSymbol(symbol)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// SetName updates the display name of an entry
func (s *Storage) SetName(symbol, name string) error {
	return s.db.Model(&domain.WatchlistEntry{}).
		Where("symbol = ?", domain.NormalizeSymbol(symbol)).
		Update("name", name).Error
}

// ToggleFavorite toggles the favorite status of a symbol
func (s *Storage) ToggleFavorite(symbol string) (bool, error) {
	var entry domain.WatchlistEntry
	if err := s.db.First(&entry, "symbol = ?", domain.NormalizeSymbol(symbol)).Error; err != nil {
		return false, err
	}

	entry.IsFavorite = !entry.IsFavorite
	err := s.db.Save(&entry).Error
	return entry.IsFavorite, err
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveConfig saves a user configuration
func (s *Storage) SaveConfig(key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// LoadConfigMap loads all user configurations as a map
func (s *Storage) LoadConfigMap() (map[string]string, error) {
	var configs []domain.AppConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}
