package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/adapters/feed"
	"github.com/mashoras/activity-service/internal/config"
	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
)

type ActivityRepository struct {
	db   *sql.DB
	cb   *gobreaker.CircuitBreaker
	feed *feed.Feed[[]domain.Activity]
	log  *zap.Logger
}

var _ ports.ActivityRepository = (*ActivityRepository)(nil)

func NewActivityRepository(db *sql.DB, pingInterval time.Duration, log *zap.Logger) *ActivityRepository {
	if log == nil {
		log = zap.NewNop()
	}
	r := &ActivityRepository{
		db:  db,
		cb:  config.NewCircuitBreaker(config.BreakerPostgres, log),
		log: log.Named("activity_repository"),
	}
	r.feed = feed.New("activities", ActivitiesChannel, r.ListActivities, pingInterval, log)
	return r
}

// Feed exposes the change feed so the composition root can run its listener
// and health probes can read it.
func (r *ActivityRepository) Feed() *feed.Feed[[]domain.Activity] { return r.feed }

func (r *ActivityRepository) WatchActivities(ctx context.Context, fn func([]domain.Activity)) error {
	return r.feed.Subscribe(ctx, fn)
}

func (r *ActivityRepository) RefreshActivities(ctx context.Context) error {
	return r.feed.Refresh(ctx)
}

func (r *ActivityRepository) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	var list []domain.Activity
	err := guard(r.cb, "list activities", func() error {
		rows, err := r.db.QueryContext(ctx,
			`SELECT `+activityColumns+` FROM activities ORDER BY created_at, id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		list = make([]domain.Activity, 0)
		for rows.Next() {
			rec, err := scanActivity(rows)
			if err != nil {
				return err
			}
			a, ok := toActivity(rec)
			if !ok {
				r.log.Warn("skipping malformed activity", zap.String("id", rec.ID))
				continue
			}
			list = append(list, a)
		}
		return rows.Err()
	})
	return list, err
}

func (r *ActivityRepository) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	var a domain.Activity
	err := guard(r.cb, "get activity", func() error {
		if err := checkID(id); err != nil {
			return err
		}
		rec, err := scanActivity(r.db.QueryRowContext(ctx,
			`SELECT `+activityColumns+` FROM activities WHERE id = $1`, id))
		if err == sql.ErrNoRows {
			return domain.NewNotFoundError("activity", id)
		}
		if err != nil {
			return err
		}
		var ok bool
		if a, ok = toActivity(rec); !ok {
			return domain.NewNotFoundError("activity", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateActivity stores a new document. The id, enrollment list and finalized
// flag are always assigned here, whatever activity carries.
func (r *ActivityRepository) CreateActivity(ctx context.Context, activity domain.Activity, creatorID string) (string, error) {
	id := uuid.NewString()
	err := guard(r.cb, "create activity", func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO activities (id, titulo, descripcion, fecha, cupos, carrera,
				finalizado, horas_a_realizar, estudiantes_inscritos, creado_por)
			VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, '{}', $8)`,
			id, activity.Title, activity.Description, nullTime(activity.Date),
			activity.Capacity, activity.Career, activity.HoursAwarded, creatorID)
		return err
	})
	if err != nil {
		return "", err
	}
	r.log.Info("activity stored", zap.String("id", id), zap.String("creator", creatorID))
	return id, nil
}

func (r *ActivityRepository) UpdateActivity(ctx context.Context, id string, draft domain.ActivityDraft) error {
	return guard(r.cb, "update activity", func() error {
		if err := checkID(id); err != nil {
			return err
		}
		res, err := r.db.ExecContext(ctx, `
			UPDATE activities
			SET titulo = $2, descripcion = $3, fecha = $4, cupos = $5, carrera = $6,
				horas_a_realizar = $7
			WHERE id = $1`,
			id, draft.Title, draft.Description, nullTime(draft.Date), draft.Capacity,
			draft.Career, draft.HoursAwarded)
		if err != nil {
			return err
		}
		return r.requireAffected(ctx, res, id)
	})
}

func (r *ActivityRepository) EnrollStudent(ctx context.Context, activityID, userID string) error {
	return guard(r.cb, "enroll student", func() error {
		if err := checkID(activityID); err != nil {
			return err
		}
		res, err := r.db.ExecContext(ctx, `
			UPDATE activities
			SET estudiantes_inscritos = array_append(estudiantes_inscritos, $2)
			WHERE id = $1 AND NOT ($2 = ANY(estudiantes_inscritos))`,
			activityID, userID)
		if err != nil {
			return err
		}
		return r.requireAffected(ctx, res, activityID)
	})
}

func (r *ActivityRepository) UnenrollStudent(ctx context.Context, activityID, userID string) error {
	return guard(r.cb, "unenroll student", func() error {
		if err := checkID(activityID); err != nil {
			return err
		}
		res, err := r.db.ExecContext(ctx, `
			UPDATE activities
			SET estudiantes_inscritos = array_remove(estudiantes_inscritos, $2)
			WHERE id = $1 AND $2 = ANY(estudiantes_inscritos)`,
			activityID, userID)
		if err != nil {
			return err
		}
		return r.requireAffected(ctx, res, activityID)
	})
}

// MarkActivityAsCompleted finalizes the activity and credits its hours to
// every enrolled student in one transaction. Only the call that flips the
// flag credits anything, so repeating it is a no-op.
func (r *ActivityRepository) MarkActivityAsCompleted(ctx context.Context, activityID string) error {
	return guard(r.cb, "finalize activity", func() error {
		if err := checkID(activityID); err != nil {
			return err
		}
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var hours sql.NullInt64
		var enrolled pq.StringArray
		err = tx.QueryRowContext(ctx, `
			UPDATE activities SET finalizado = TRUE
			WHERE id = $1 AND NOT finalizado
			RETURNING horas_a_realizar, estudiantes_inscritos`,
			activityID).Scan(&hours, &enrolled)
		if err == sql.ErrNoRows {
			exists, err := r.exists(ctx, tx, activityID)
			if err != nil {
				return err
			}
			if !exists {
				return domain.NewNotFoundError("activity", activityID)
			}
			r.log.Debug("activity already finalized", zap.String("id", activityID))
			return nil
		}
		if err != nil {
			return err
		}

		students := dedupe(enrolled)
		if len(students) > 0 {
			_, err = tx.ExecContext(ctx, `
				UPDATE users
				SET avance = avance + $1,
					actividades_realizadas = CASE
						WHEN $2 = ANY(actividades_realizadas) THEN actividades_realizadas
						ELSE array_append(actividades_realizadas, $2)
					END
				WHERE uid = ANY($3)`,
				hours.Int64, activityID, pq.Array(students))
			if err != nil {
				return err
			}
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		r.log.Info("activity finalized",
			zap.String("id", activityID),
			zap.Int64("hours", hours.Int64),
			zap.Int("students", len(students)))
		return nil
	})
}

// DeleteActivity removes the document. Deleting a missing activity succeeds,
// and completed-activity lists that reference it are left as they are.
func (r *ActivityRepository) DeleteActivity(ctx context.Context, activityID string) error {
	return guard(r.cb, "delete activity", func() error {
		if _, err := uuid.Parse(activityID); err != nil {
			return nil
		}
		_, err := r.db.ExecContext(ctx, `DELETE FROM activities WHERE id = $1`, activityID)
		return err
	})
}

// requireAffected distinguishes a no-op update on an existing row from a
// missing row.
func (r *ActivityRepository) requireAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	exists, err := r.exists(ctx, r.db, id)
	if err != nil {
		return err
	}
	if !exists {
		return domain.NewNotFoundError("activity", id)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *ActivityRepository) exists(ctx context.Context, q queryRower, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	var found bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM activities WHERE id = $1)`, id).Scan(&found)
	return found, err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// checkID rejects ids that cannot exist before they reach the uuid column.
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.NewNotFoundError("activity", id)
	}
	return nil
}
