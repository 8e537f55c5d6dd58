package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"academtrack_go/models"
	"academtrack_go/store"
	"academtrack_go/utils"
)

// ErrInvalidCredentials is what login failures look like to the user,
// regardless of whether the username or the password was wrong.
var ErrInvalidCredentials = fmt.Errorf("invalid username or password")

// AuthService manages the user collection. Users persist as one
// document under academic_users with the eventual policy.
type AuthService struct {
	adapter *store.Adapter

	// Serializes signup/delete so the uniqueness and first-user-admin
	// checks don't race.
	mu sync.Mutex
}

func NewAuthService(adapter *store.Adapter) *AuthService {
	return &AuthService{adapter: adapter}
}

func (s *AuthService) loadUsers(ctx context.Context) ([]models.User, error) {
	payload, err := s.adapter.Load(ctx, store.KeyUsers)
	if err != nil {
		return []models.User{}, nil
	}
	var users []models.User
	if err := json.Unmarshal(payload, &users); err != nil {
		return nil, fmt.Errorf("corrupt users document: %w", err)
	}
	return users, nil
}

func (s *AuthService) saveUsers(ctx context.Context, users []models.User) error {
	payload, err := json.Marshal(users)
	if err != nil {
		return err
	}
	return s.adapter.SaveEventual(ctx, store.KeyUsers, payload)
}

// Signup creates an account. Usernames are unique case-insensitively,
// passwords are stored as bcrypt hashes, and the first account ever
// created becomes the admin.
func (s *AuthService) Signup(ctx context.Context, username, password string) (models.User, error) {
	username = utils.SanitizeString(username)
	if username == "" || password == "" {
		return models.User{}, fmt.Errorf("username and password are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return models.User{}, err
	}

	normalized := utils.NormalizeUsername(username)
	for _, u := range users {
		if utils.NormalizeUsername(u.Username) == normalized {
			return models.User{}, fmt.Errorf("username already taken")
		}
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to create account: %w", err)
	}

	user := models.User{
		ID:        utils.NewID(),
		Username:  username,
		Password:  hash,
		CreatedAt: time.Now().UnixMilli(),
		IsAdmin:   len(users) == 0,
	}
	users = append(users, user)

	if err := s.saveUsers(ctx, users); err != nil {
		return models.User{}, fmt.Errorf("failed to create account: %w", err)
	}
	return user, nil
}

// Login verifies credentials and returns the matching user.
func (s *AuthService) Login(ctx context.Context, username, password string) (models.User, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return models.User{}, err
	}

	normalized := utils.NormalizeUsername(username)
	for _, u := range users {
		if utils.NormalizeUsername(u.Username) != normalized {
			continue
		}
		if err := utils.CheckPassword(password, u.Password); err != nil {
			return models.User{}, ErrInvalidCredentials
		}
		return u, nil
	}
	return models.User{}, ErrInvalidCredentials
}

// GetUser returns a user by id.
func (s *AuthService) GetUser(ctx context.Context, userID string) (models.User, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return models.User{}, err
	}
	for _, u := range users {
		if u.ID == userID {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("user %s not found", userID)
}

// Users returns all accounts.
func (s *AuthService) Users(ctx context.Context) ([]models.User, error) {
	return s.loadUsers(ctx)
}

// DeleteUser removes an account (admin operation).
func (s *AuthService) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return err
	}

	filtered := users[:0]
	found := false
	for _, u := range users {
		if u.ID == userID {
			found = true
			continue
		}
		filtered = append(filtered, u)
	}
	if !found {
		return fmt.Errorf("user %s not found", userID)
	}
	return s.saveUsers(ctx, filtered)
}

// SetAdmin toggles the trust-based admin flag (admin operation).
func (s *AuthService) SetAdmin(ctx context.Context, userID string, isAdmin bool) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return models.User{}, err
	}

	for i := range users {
		if users[i].ID != userID {
			continue
		}
		users[i].IsAdmin = isAdmin
		if err := s.saveUsers(ctx, users); err != nil {
			return models.User{}, err
		}
		return users[i], nil
	}
	return models.User{}, fmt.Errorf("user %s not found", userID)
}
