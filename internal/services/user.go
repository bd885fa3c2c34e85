package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-authgate/wpgate/internal/metrics"
	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnknownRole        = errors.New("unknown role")
)

// dummyPasswordHash keeps Authenticate timing similar for unknown usernames.
var dummyPasswordHash, _ = bcrypt.GenerateFromPassword([]byte("unused-password"), bcrypt.DefaultCost)

// UserService is the principal provider backing the login page and bearer authentication.
type UserService struct {
	store   *store.Store
	metrics metrics.Recorder
	log     *zap.Logger
}

func NewUserService(s *store.Store, m metrics.Recorder, log *zap.Logger) *UserService {
	return &UserService{store: s, metrics: m, log: log}
}

func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.GetUserByUsername(strings.TrimSpace(username))
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(password))
		s.metrics.RecordLogin("session", false)
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.metrics.RecordLogin("session", false)
		s.log.Info("login failed", zap.String("username", user.Username))
		return nil, ErrInvalidCredentials
	}

	s.metrics.RecordLogin("session", true)
	return user, nil
}

func (s *UserService) GetUserByID(id string) (*models.User, error) {
	user, err := s.store.GetUserByID(id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) ListUsers() ([]models.User, error) {
	return s.store.ListUsers()
}

type CreateUserRequest struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
	Roles       []string
}

func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{models.RoleSubscriber}
	}
	for _, role := range roles {
		if !models.IsKnownRole(role) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
		Roles:        strings.Join(roles, " "),
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}
