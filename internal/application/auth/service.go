package auth

import (
	"context"
	"errors"
	"strings"

	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/pkg/constants"
	"corkboard-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// LoginInput for login request body.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupInput for signup request body. Fullname is optional.
type SignupInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Fullname string `json:"fullname"`
}

// SessionUserShape is the object stored in session and returned by /me.
type SessionUserShape struct {
	UserID   string  `json:"user_id"`
	Fullname string  `json:"fullname"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	OrgID    *string `json:"org_id"`
}

// Actor converts the session shape into the profile services act as.
func (s *SessionUserShape) Actor() (domain.Actor, error) {
	uid, err := uuid.Parse(s.UserID)
	if err != nil {
		return domain.Actor{}, ErrNotAuthenticated
	}
	if s.OrgID == nil {
		return domain.Actor{}, ErrNoOrganization
	}
	oid, err := uuid.Parse(*s.OrgID)
	if err != nil {
		return domain.Actor{}, ErrNoOrganization
	}
	return domain.Actor{UserID: uid, OrgID: oid, Role: s.Role, Email: s.Email}, nil
}

// Authenticator abstracts login and signup (for production GORM or test doubles).
type Authenticator interface {
	Login(ctx context.Context, in LoginInput) (*domain.User, error)
	Signup(ctx context.Context, in SignupInput) (*domain.User, error)
}

// Service implements Authenticator using GORM and bcrypt.
type Service struct {
	DB *gorm.DB
}

// Login finds user by email and verifies password. Returns user for session or error.
func (s *Service) Login(ctx context.Context, in LoginInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrEmailPasswordRequired
	}
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidEmail
		}
		return nil, domain.ClassifyStoreError(err, "user")
	}
	if u.PasswordHash == "" {
		return nil, ErrInvalidEmail
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrIncorrectPassword
	}
	return &u, nil
}

// Signup creates an account without an org; the org is attached on first login.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrEmailPasswordRequired
	}
	if !validation.IsValidEmail(email) {
		return nil, ErrEmailFormat
	}
	if !validation.IsValidPassword(in.Password) {
		return nil, ErrWeakPassword
	}
	fullname := strings.TrimSpace(in.Fullname)
	if fullname != "" && !validation.IsValidFullname(fullname) {
		return nil, ErrInvalidFullname
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "user")
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		Fullname:     fullname,
		Email:        email,
		PasswordHash: string(hash),
		Role:         constants.Member,
	}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "user")
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// VerifyUser validates session user and returns the shape for /me.
func VerifyUser(sessionUser interface{}) (*SessionUserShape, error) {
	if sessionUser == nil {
		return nil, ErrNotAuthenticated
	}
	m, ok := sessionUser.(map[string]interface{})
	if !ok {
		return nil, ErrNotAuthenticated
	}
	userID, _ := m["user_id"].(string)
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	out := &SessionUserShape{
		UserID:   userID,
		Fullname: str(m["fullname"]),
		Email:    str(m["email"]),
		Role:     str(m["role"]),
	}
	if o, ok := m["org_id"]; ok && o != nil {
		if s, ok := o.(string); ok {
			out.OrgID = &s
		}
	}
	return out, nil
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
