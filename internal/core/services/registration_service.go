package services

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
)

type RegistrationRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"notblank"`
	LastName string `json:"last_name" validate:"notblank"`
	Career   string `json:"career" validate:"regcareer"`
}

var errNotInstitutional = errors.New("El correo debe ser institucional (" + domain.InstitutionalDomain + ")")

type RegistrationService struct {
	identity ports.IdentityGateway
	users    ports.UserRepository
	log      *zap.Logger
}

func NewRegistrationService(
	identity ports.IdentityGateway,
	users ports.UserRepository,
	log *zap.Logger,
) *RegistrationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationService{
		identity: identity,
		users:    users,
		log:      log.Named("registration"),
	}
}

// Register creates the identity account and its profile. The role is derived
// from the email here and never again.
func (s *RegistrationService) Register(ctx context.Context, req RegistrationRequest) (*domain.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	req.LastName = strings.TrimSpace(req.LastName)

	if !domain.IsInstitutionalEmail(req.Email) {
		return nil, domain.NewValidationError(errNotInstitutional,
			domain.FieldError{Field: "email", Error: errNotInstitutional.Error()})
	}
	if err := domain.ValidateStruct(req); err != nil {
		return nil, err
	}

	uid, err := s.identity.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		if domain.IsRemote(err) {
			return nil, err
		}
		return nil, domain.NewValidationError(errors.New(domain.ErrorMessage(err, "Error al registrar usuario")))
	}

	user := domain.User{
		UID:                  uid,
		Name:                 req.Name,
		LastName:             req.LastName,
		Email:                req.Email,
		Role:                 domain.DetermineRole(req.Email),
		Career:               req.Career,
		CompletedActivityIDs: []string{},
		CreatedAt:            time.Now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		s.log.Error("profile not stored after sign up", zap.String("uid", uid), zap.Error(err))
		// Without a profile the account is unusable and would block the email.
		if derr := s.identity.DeleteAccount(ctx, uid); derr != nil {
			s.log.Error("failed to remove orphaned credentials", zap.String("uid", uid), zap.Error(derr))
		}
		return nil, err
	}

	s.log.Info("user registered", zap.String("uid", uid), zap.String("role", string(user.Role)))
	return &user, nil
}
