package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"drone_routes/internal/models"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 6
	// bcrypt only looks at the first 72 bytes
	maxPasswordLen = 72
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// Register creates a user with a bcrypt hashed password.
func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, BadRequest("Username and password are required", nil)
	}
	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return nil, BadRequest("Username must be between 3 and 50 characters long", nil)
	}
	if len(password) < minPasswordLen {
		return nil, BadRequest("Password must be at least 6 characters long", nil)
	}
	if len(password) > maxPasswordLen {
		return nil, BadRequest("Password must be at most 72 bytes long", nil)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, Internal("could not hash password", err)
	}

	user := models.User{Username: username, Password: hash}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, Conflict("Username already exists", err)
		}
		return nil, Internal("could not create user", err)
	}
	logrus.WithField("user_id", user.ID).Info("Registered user")
	return &user, nil
}

// Authenticate checks a username and password pair.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Unauthorized("Invalid username or password")
		}
		return nil, Internal("could not load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, Unauthorized("Invalid username or password")
	}
	return &user, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("User not found")
		}
		return nil, Internal("could not load user", err)
	}
	return &user, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}
