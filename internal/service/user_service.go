package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Maelco1/reset/internal/models"
	appErrors "github.com/Maelco1/reset/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByLogin(ctx context.Context, login string) (*models.User, error)
	ListDirectory(ctx context.Context, roles []models.UserRole) ([]models.DirectoryEntry, error)
	Create(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id string, active bool) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest represents payload for creating practitioners and administrators.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	Username string          `json:"username" validate:"required,min=2,max=64"`
	FullName string          `json:"full_name" validate:"required"`
	Trigram  string          `json:"trigram" validate:"omitempty,min=2,max=3"`
	Role     models.UserRole `json:"role" validate:"required,oneof=administrateur medecin remplacant"`
	Password string          `json:"password" validate:"required,min=8"`
}

// UserService handles account management workflows.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// Directory lists the active accounts of one population ("medecin", "remplacant") or of both
// practitioner populations when population is empty.
func (s *UserService) Directory(ctx context.Context, population string) ([]models.DirectoryEntry, error) {
	roles := []models.UserRole{models.RoleDoctor, models.RoleSubstitute}
	if population = strings.TrimSpace(population); population != "" {
		roles = []models.UserRole{models.UserRole(models.ParseUserType(population))}
	}
	entries, err := s.repo.ListDirectory(ctx, roles)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list practitioners")
	}
	if entries == nil {
		entries = []models.DirectoryEntry{}
	}
	return entries, nil
}

// Create adds a new account. The trigram defaults to the first letters of the username.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID string, meta models.LoginRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	for _, login := range []string{req.Email, req.Username} {
		if _, err := s.repo.FindByLogin(ctx, login); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email or username already exists")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check login uniqueness")
		}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	trigram := req.Trigram
	if trigram == "" {
		trigram = req.Username
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Username:     strings.TrimSpace(req.Username),
		FullName:     req.FullName,
		Trigram:      models.NormalizeTrigram(trigram),
		Role:         req.Role,
		Active:       true,
		PasswordHash: string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "trigram": user.Trigram, "role": user.Role})
	s.audit(ctx, &models.AuditLog{
		UserID:     optionalString(actorID),
		Action:     models.AuditActionUserCreate,
		Resource:   "users",
		ResourceID: &user.ID,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return user, nil
}

// Deactivate performs a soft delete. Deactivated practitioners leave the auto-assignment roster.
func (s *UserService) Deactivate(ctx context.Context, id string, actorID string, meta models.LoginRequest) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.ID == actorID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot deactivate your own account")
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"active": user.Active})
	newPayload, _ := json.Marshal(map[string]interface{}{"active": false})
	s.audit(ctx, &models.AuditLog{
		UserID:     optionalString(actorID),
		Action:     models.AuditActionUserDeactivate,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

func (s *UserService) audit(ctx context.Context, log *models.AuditLog) {
	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
