package repository

import (
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/mashoras/activity-service/internal/core/domain"
)

const activityColumns = `id, titulo, descripcion, fecha, cupos, carrera, finalizado,
	horas_a_realizar, estudiantes_inscritos, creado_por`

const userColumns = `uid, nombre, apellido, email, rol, carrera, meta, avance,
	actividades_realizadas, created_at`

// activityRecord is one row of the activities table as stored.
type activityRecord struct {
	ID          string
	Title       sql.NullString
	Description sql.NullString
	Date        sql.NullTime
	Capacity    sql.NullInt64
	Career      sql.NullString
	Finalized   bool
	Hours       sql.NullInt64
	Enrolled    pq.StringArray
	CreatedBy   sql.NullString
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanActivity(s scanner) (activityRecord, error) {
	var rec activityRecord
	err := s.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.Date, &rec.Capacity,
		&rec.Career, &rec.Finalized, &rec.Hours, &rec.Enrolled, &rec.CreatedBy)
	return rec, err
}

// toActivity is the only place rows become activities. Missing fields take
// their defaults, a blank career means open to all, and a row without a title
// is rejected.
func toActivity(rec activityRecord) (domain.Activity, bool) {
	title := strings.TrimSpace(rec.Title.String)
	if !rec.Title.Valid || title == "" {
		return domain.Activity{}, false
	}

	career := strings.TrimSpace(rec.Career.String)
	if career == "" {
		career = domain.CareerAll
	}

	a := domain.Activity{
		ID:                 rec.ID,
		Title:              rec.Title.String,
		Description:        rec.Description.String,
		Capacity:           int(rec.Capacity.Int64),
		Career:             career,
		Finalized:          rec.Finalized,
		HoursAwarded:       int(rec.Hours.Int64),
		EnrolledStudentIDs: dedupe(rec.Enrolled),
		CreatedBy:          rec.CreatedBy.String,
	}
	if rec.Date.Valid {
		d := rec.Date.Time
		a.Date = &d
	}
	return a, true
}

type userRecord struct {
	UID       string
	Name      string
	LastName  string
	Email     string
	Role      string
	Career    string
	Goal      int
	Progress  int
	Completed pq.StringArray
	CreatedAt time.Time
}

func scanUser(s scanner) (userRecord, error) {
	var rec userRecord
	err := s.Scan(&rec.UID, &rec.Name, &rec.LastName, &rec.Email, &rec.Role, &rec.Career,
		&rec.Goal, &rec.Progress, &rec.Completed, &rec.CreatedAt)
	return rec, err
}

func toUser(rec userRecord) domain.User {
	return domain.User{
		UID:                  rec.UID,
		Name:                 rec.Name,
		LastName:             rec.LastName,
		Email:                rec.Email,
		Role:                 domain.ParseRole(rec.Role),
		Career:               rec.Career,
		HourGoal:             rec.Goal,
		HourProgress:         rec.Progress,
		CompletedActivityIDs: dedupe(rec.Completed),
		CreatedAt:            rec.CreatedAt,
	}
}

// dedupe keeps first occurrences in order and never returns nil.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
