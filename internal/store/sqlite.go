package store

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/go-authgate/wpgate/internal/config"
	"github.com/go-authgate/wpgate/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the relational backing for the client registry and the user directory.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(driver, dsn string, cfg *config.Config, log *zap.Logger) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if isSharedMemory(dsn) {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Client{},
	); err != nil {
		return nil, err
	}

	if log == nil {
		log = zap.NewNop()
	}
	store := &Store{db: db, log: log}

	if cfg != nil {
		if err := store.seedData(cfg); err != nil {
			log.Warn("failed to seed data", zap.Error(err))
		}
	}

	return store, nil
}

// generateRandomPassword generates a random password of specified length
func generateRandomPassword(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}

func (s *Store) seedData(cfg *config.Config) error {
	var userCount int64
	s.db.Model(&models.User{}).Count(&userCount)
	if userCount == 0 {
		password := cfg.DefaultAdminPassword
		generated := password == ""
		if generated {
			var err error
			if password, err = generateRandomPassword(16); err != nil {
				return err
			}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user := &models.User{
			ID:           uuid.New().String(),
			Username:     "admin",
			Email:        "admin@localhost",
			PasswordHash: string(hash),
			DisplayName:  "Site Administrator",
			Roles:        models.RoleAdministrator,
		}
		if err := s.db.Create(user).Error; err != nil {
			return err
		}
		if generated {
			s.log.Info("created default user", zap.String("username", "admin"),
				zap.String("password", password))
		} else {
			s.log.Info("created default user", zap.String("username", "admin"))
		}
	}

	if cfg.DemoClientID == "" {
		return nil
	}
	if _, err := s.GetClient(cfg.DemoClientID); err == nil {
		return nil
	} else if !errors.Is(err, ErrRecordNotFound) {
		return err
	}

	client := &models.Client{
		ClientID:     cfg.DemoClientID,
		Name:         "WordPress React Demo",
		RedirectURIs: strings.Join(cfg.DemoRedirectURIs, " "),
	}
	if cfg.DemoClientSecret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DemoClientSecret), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		client.ClientSecretHash = string(hash)
	}
	if err := s.db.Create(client).Error; err != nil {
		return err
	}
	s.log.Info("created demo OAuth2 client",
		zap.String("client_id", client.ClientID),
		zap.Bool("public", client.IsPublic()),
		zap.Strings("redirect_uris", cfg.DemoRedirectURIs),
	)
	return nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

// User operations
func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &user, nil
}

func (s *Store) ListUsers() ([]models.User, error) {
	var users []models.User
	if err := s.db.Order("username").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) CreateUser(user *models.User) error {
	if _, err := s.GetUserByUsername(user.Username); err == nil {
		return ErrUsernameConflict
	}
	return s.db.Create(user).Error
}

// Client operations
func (s *Store) GetClient(clientID string) (*models.Client, error) {
	var client models.Client
	if err := s.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &client, nil
}

func (s *Store) ListClients() ([]models.Client, error) {
	var clients []models.Client
	if err := s.db.Order("created_at DESC").Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

// UpsertClient creates the client or replaces its secret, name and redirect URIs.
func (s *Store) UpsertClient(client *models.Client) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Client
		err := tx.Where("client_id = ?", client.ClientID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(client).Error
		case err != nil:
			return err
		}
		return tx.Model(&existing).Select("ClientSecretHash", "Name", "RedirectURIs").
			Updates(client).Error
	})
}

func (s *Store) DeleteClient(clientID string) error {
	return s.db.Where("client_id = ?", clientID).Delete(&models.Client{}).Error
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying database connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
