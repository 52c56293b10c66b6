package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"user-mgmt-api/internal/domain"
	"user-mgmt-api/internal/email"
	"user-mgmt-api/internal/repository"
)

// UserService coordina reglas de negocio para usuarios: registro, login
// con bloqueo por intentos fallidos, verificación de email y CRUD.
type UserService struct {
	logger           *zap.Logger
	users            repository.UserRepository
	emailSender      email.Sender
	tokens           VerificationTokenStore
	resendLimiter    RateLimiter
	lockoutThreshold int
	baseURL          string
}

func NewUserService(
	logger *zap.Logger,
	users repository.UserRepository,
	emailSender email.Sender,
	tokens VerificationTokenStore,
	resendLimiter RateLimiter,
	lockoutThreshold int,
	baseURL string,
) *UserService {
	if tokens == nil {
		tokens = NewMemoryVerificationStore()
	}
	if resendLimiter == nil {
		resendLimiter = NewMemoryRateLimiter(resendWindow, 3)
	}
	if lockoutThreshold <= 0 {
		lockoutThreshold = defaultLockoutThreshold
	}
	return &UserService{
		logger:           logger,
		users:            users,
		emailSender:      emailSender,
		tokens:           tokens,
		resendLimiter:    resendLimiter,
		lockoutThreshold: lockoutThreshold,
		baseURL:          strings.TrimRight(baseURL, "/"),
	}
}

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountLocked       = errors.New("account locked")
	ErrEmailExists         = errors.New("email already exists")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrWeakPassword        = errors.New("password too weak")
	ErrInvalidRole         = errors.New("invalid role")
	ErrVerificationInvalid = errors.New("verification token invalid")
	ErrRateLimited         = errors.New("rate limited")
	ErrNoUpdatableFields   = errors.New("no updatable fields")
)

const (
	defaultLockoutThreshold = 5
	verificationTTL         = 24 * time.Hour
	resendWindow            = 10 * time.Minute
	minPasswordLength       = 8
)

type RegisterInput struct {
	Email    string
	Nickname string
	Password string
}

// Register crea un usuario AUTHENTICATED sin verificar y envía el correo
// de verificación. El fallo del envío no revierte el alta: queda logueado
// y el usuario puede pedir un reenvío.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	emailAddr := normalizeEmail(input.Email)
	if emailAddr == "" {
		return domain.User{}, ErrInvalidEmail
	}
	password := strings.TrimSpace(input.Password)
	if len(password) < minPasswordLength {
		return domain.User{}, ErrWeakPassword
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Nickname:     strings.TrimSpace(input.Nickname),
		Email:        emailAddr,
		PasswordHash: string(hashBytes),
		Role:         domain.RoleAuthenticated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, ErrEmailExists
		}
		return domain.User{}, err
	}

	if err := s.sendVerification(ctx, user); err != nil {
		if s.logger != nil {
			s.logger.Warn("send verification email failed", zap.Error(err), zap.String("email", emailAddr))
		}
	}

	return user, nil
}

// Login ejecuta el flujo de autenticación. El orden de los chequeos es
// deliberado: existencia y bloqueo se resuelven antes de verificar la
// contraseña, y el mismo error genérico cubre usuario inexistente,
// contraseña incorrecta y cuenta sin verificar.
func (s *UserService) Login(ctx context.Context, emailAddr, password string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	password = strings.TrimSpace(password)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if user.IsLocked {
		return domain.User{}, ErrAccountLocked
	}
	if !user.IsVerified {
		return domain.User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.handleFailedLogin(ctx, user)
		return domain.User{}, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 {
		// El reset del contador es contabilidad, no una decisión de auth:
		// un fallo transitorio no debe tumbar un login con password correcta.
		if err := s.users.ResetFailedLogins(ctx, user.ID); err != nil {
			if s.logger != nil {
				s.logger.Warn("reset failed login counter", zap.Error(err), zap.String("user_id", user.ID))
			}
		} else {
			user.FailedLoginAttempts = 0
		}
	}
	return user, nil
}

func (s *UserService) handleFailedLogin(ctx context.Context, user domain.User) {
	attempts, locked, err := s.users.RecordFailedLogin(ctx, user.ID, s.lockoutThreshold)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("record failed login", zap.Error(err), zap.String("user_id", user.ID))
		}
		return
	}
	if locked && attempts == s.lockoutThreshold {
		if s.logger != nil {
			s.logger.Warn("account locked",
				zap.String("user_id", user.ID),
				zap.Int("failed_attempts", attempts),
			)
		}
		if s.emailSender != nil {
			if err := s.emailSender.SendAccountLockedEmail(ctx, user.Email, user.Nickname); err != nil && s.logger != nil {
				s.logger.Warn("send account locked email failed", zap.Error(err))
			}
		}
	}
}

// VerifyEmail consume un token de verificación y marca el usuario.
func (s *UserService) VerifyEmail(ctx context.Context, userID, token string) error {
	ownerID, ok, err := s.tokens.Consume(token)
	if err != nil {
		return err
	}
	if !ok || ownerID != userID {
		return ErrVerificationInvalid
	}
	if err := s.users.MarkVerified(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// ResendVerification reenvía el correo de verificación. Nunca revela si
// el email existe: usuario inexistente o ya verificado terminan en nil.
func (s *UserService) ResendVerification(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrInvalidEmail
	}
	if s.resendLimiter != nil && !s.resendLimiter.Allow(emailAddr) {
		return ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if user.IsVerified {
		return nil
	}
	return s.sendVerification(ctx, user)
}

func (s *UserService) sendVerification(ctx context.Context, user domain.User) error {
	token := uuid.NewString()
	if err := s.tokens.Store(token, user.ID, verificationTTL); err != nil {
		return err
	}
	if s.emailSender == nil {
		return errors.New("email sender not configured")
	}
	verificationURL := fmt.Sprintf("%s/verify-email/%s/%s", s.baseURL, user.ID, token)
	return s.emailSender.SendVerificationEmail(ctx, user.Email, user.Nickname, verificationURL)
}

type CreateUserInput struct {
	Email      string
	Nickname   string
	Password   string
	Role       domain.Role
	IsVerified bool
}

// CreateUser crea un usuario desde el CRUD administrativo. A diferencia
// del registro, el caller puede fijar rol y estado de verificación.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (domain.User, error) {
	emailAddr := normalizeEmail(input.Email)
	if emailAddr == "" {
		return domain.User{}, ErrInvalidEmail
	}
	password := strings.TrimSpace(input.Password)
	if len(password) < minPasswordLength {
		return domain.User{}, ErrWeakPassword
	}
	role := input.Role
	if role == "" {
		role = domain.RoleAuthenticated
	}
	if !role.Valid() {
		return domain.User{}, ErrInvalidRole
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Nickname:     strings.TrimSpace(input.Nickname),
		Email:        emailAddr,
		PasswordHash: string(hashBytes),
		Role:         role,
		IsVerified:   input.IsVerified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, ErrEmailExists
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

type UpdateUserInput struct {
	Email              *string
	Nickname           *string
	Role               *domain.Role
	FirstName          *string
	LastName           *string
	Bio                *string
	GithubProfileURL   *string
	LinkedinProfileURL *string
}

// UpdateUser aplica una actualización parcial administrativa.
func (s *UserService) UpdateUser(ctx context.Context, id string, input UpdateUserInput) (domain.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}

	if input.Email != nil {
		emailAddr := normalizeEmail(*input.Email)
		if emailAddr == "" {
			return domain.User{}, ErrInvalidEmail
		}
		user.Email = emailAddr
	}
	if input.Nickname != nil {
		user.Nickname = strings.TrimSpace(*input.Nickname)
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return domain.User{}, ErrInvalidRole
		}
		user.Role = *input.Role
	}
	applyProfileFields(&user, input.FirstName, input.LastName, input.Bio, input.GithubProfileURL, input.LinkedinProfileURL)
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, ErrEmailExists
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// ListUsers devuelve una página de usuarios y el total.
func (s *UserService) ListUsers(ctx context.Context, skip, limit int) ([]domain.User, int, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.users.List(ctx, skip, limit)
}

// UnlockUser limpia el bloqueo y el contador de fallos. El login nunca
// desbloquea por sí solo: este es el único camino de desbloqueo.
func (s *UserService) UnlockUser(ctx context.Context, id string) error {
	if err := s.users.Unlock(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

type ProfileUpdateInput struct {
	FirstName          *string
	LastName           *string
	Bio                *string
	GithubProfileURL   *string
	LinkedinProfileURL *string
}

// HasFields indica si el payload trae al menos un campo actualizable.
func (p ProfileUpdateInput) HasFields() bool {
	return p.FirstName != nil || p.LastName != nil || p.Bio != nil ||
		p.GithubProfileURL != nil || p.LinkedinProfileURL != nil
}

// UpdateProfile actualiza campos de perfil del propio usuario.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input ProfileUpdateInput) (domain.User, error) {
	if !input.HasFields() {
		return domain.User{}, ErrNoUpdatableFields
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	applyProfileFields(&user, input.FirstName, input.LastName, input.Bio, input.GithubProfileURL, input.LinkedinProfileURL)
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// SetProfessionalStatus cambia el estado profesional y notifica por email.
func (s *UserService) SetProfessionalStatus(ctx context.Context, id string, isProfessional bool) (domain.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.users.SetProfessionalStatus(ctx, id, isProfessional); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	user.IsProfessional = isProfessional

	if s.emailSender != nil {
		if err := s.emailSender.SendProfessionalStatusEmail(ctx, user.Email, user.Nickname, isProfessional); err != nil && s.logger != nil {
			s.logger.Warn("send professional status email failed", zap.Error(err), zap.String("user_id", id))
		}
	}
	return user, nil
}

func applyProfileFields(user *domain.User, firstName, lastName, bio, github, linkedin *string) {
	if firstName != nil {
		user.FirstName = strings.TrimSpace(*firstName)
	}
	if lastName != nil {
		user.LastName = strings.TrimSpace(*lastName)
	}
	if bio != nil {
		user.Bio = strings.TrimSpace(*bio)
	}
	if github != nil {
		user.GithubProfileURL = strings.TrimSpace(*github)
	}
	if linkedin != nil {
		user.LinkedinProfileURL = strings.TrimSpace(*linkedin)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RateLimiter limita la frecuencia de reenvíos de verificación por clave.
type RateLimiter interface {
	Allow(key string) bool
}

type memoryRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// NewMemoryRateLimiter crea un rate limiter en memoria.
func NewMemoryRateLimiter(window time.Duration, max int) RateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
	}
}

func (l *memoryRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	kept = append(kept, now)
	l.hits[key] = kept
	return true
}
