package services

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
)

type Profile struct {
	User           domain.User `json:"user"`
	HasGoal        bool        `json:"has_goal"`
	Progress       float64     `json:"progress"`
	HoursRemaining int         `json:"hours_remaining"`
	Carnet         string      `json:"carnet,omitempty"`
}

type ProfileService struct {
	users ports.UserRepository
}

func NewProfileService(users ports.UserRepository) *ProfileService {
	return &ProfileService{users: users}
}

func (s *ProfileService) Load(ctx context.Context, uid string) (*Profile, error) {
	if uid == "" {
		return nil, domain.NewAuthError("")
	}
	user, err := s.users.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	p := &Profile{User: *user, HoursRemaining: user.HoursRemaining()}
	p.Progress, p.HasGoal = user.Progress()
	if user.Role == domain.RoleStudent {
		p.Carnet, _ = domain.ExtractCarnet(user.Email)
	}
	return p, nil
}

func (s *ProfileService) UpdateHourGoal(ctx context.Context, uid string, goal int) error {
	if uid == "" {
		return domain.NewAuthError("")
	}
	if goal <= 0 {
		return domain.NewValidationError(errors.New("la meta debe ser mayor que cero"),
			domain.FieldError{Field: "hour_goal", Error: "debe ser mayor que cero"})
	}
	return s.users.UpdateHourGoal(ctx, uid, goal)
}
