package domain

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

type Activity struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Date               *time.Time `json:"date,omitempty"`
	Capacity           int        `json:"capacity"`
	Career             string     `json:"career"`
	Finalized          bool       `json:"finalized"`
	HoursAwarded       int        `json:"hours_awarded"`
	EnrolledStudentIDs []string   `json:"enrolled_student_ids"`
	CreatedBy          string     `json:"created_by"`
}

// IsOpenToAll reports whether every career may enroll.
func (a Activity) IsOpenToAll() bool { return IsOpenToAll(a.Career) }

// IsEligibleFor applies the career rule only; finalization is checked by callers.
func (a Activity) IsEligibleFor(career string) bool {
	return a.IsOpenToAll() || SameCareer(a.Career, career)
}

func (a Activity) IsEnrolled(uid string) bool {
	if uid == "" {
		return false
	}
	for _, id := range a.EnrolledStudentIDs {
		if id == uid {
			return true
		}
	}
	return false
}

func (a Activity) EnrolledCount() int { return len(a.EnrolledStudentIDs) }

func (a Activity) IsFull() bool { return len(a.EnrolledStudentIDs) >= a.Capacity }

// SpotsLeft may be negative when concurrent enrollments overshot capacity.
func (a Activity) SpotsLeft() int { return a.Capacity - len(a.EnrolledStudentIDs) }

// WithStudent returns a copy with uid added; no-op if already enrolled.
func (a Activity) WithStudent(uid string) Activity {
	if a.IsEnrolled(uid) {
		return a
	}
	ids := make([]string, len(a.EnrolledStudentIDs), len(a.EnrolledStudentIDs)+1)
	copy(ids, a.EnrolledStudentIDs)
	a.EnrolledStudentIDs = append(ids, uid)
	return a
}

// WithoutStudent returns a copy with uid removed; no-op if not enrolled.
func (a Activity) WithoutStudent(uid string) Activity {
	if !a.IsEnrolled(uid) {
		return a
	}
	ids := make([]string, 0, len(a.EnrolledStudentIDs))
	for _, id := range a.EnrolledStudentIDs {
		if id != uid {
			ids = append(ids, id)
		}
	}
	a.EnrolledStudentIDs = ids
	return a
}

// Clone returns a copy that shares no slices or pointers with a.
func (a Activity) Clone() Activity {
	ids := make([]string, len(a.EnrolledStudentIDs))
	copy(ids, a.EnrolledStudentIDs)
	a.EnrolledStudentIDs = ids
	if a.Date != nil {
		d := *a.Date
		a.Date = &d
	}
	return a
}

var (
	ErrActivityFinalized = errors.New("la actividad ya fue finalizada")
	ErrActivityFull      = errors.New("la actividad no tiene cupos disponibles")
	ErrNotEligible       = errors.New("la actividad no está disponible para tu carrera")
	ErrAlreadyEnrolled   = errors.New("ya estás inscrito en esta actividad")
	ErrNotEnrolled       = errors.New("no estás inscrito en esta actividad")
	ErrTeacherEnroll     = errors.New("los maestros no pueden inscribirse en actividades")
)

// CanEnroll is the presentation-level check run against the latest snapshot
// before an enroll request is forwarded. It does not make enrollment atomic.
func CanEnroll(a Activity, u User) error {
	switch {
	case u.Role.IsTeacher():
		return ErrTeacherEnroll
	case a.Finalized:
		return ErrActivityFinalized
	case a.IsEnrolled(u.UID):
		return ErrAlreadyEnrolled
	case !a.IsEligibleFor(u.Career):
		return ErrNotEligible
	case a.IsFull():
		return ErrActivityFull
	}
	return nil
}

func CanUnenroll(a Activity, uid string) error {
	if a.Finalized {
		return ErrActivityFinalized
	}
	if !a.IsEnrolled(uid) {
		return ErrNotEnrolled
	}
	return nil
}

// ActivityDraft carries the caller-editable fields of an Activity.
type ActivityDraft struct {
	Title        string     `json:"title" validate:"notblank"`
	Description  string     `json:"description" validate:"notblank"`
	Date         *time.Time `json:"date"`
	Capacity     int        `json:"capacity" validate:"gt=0"`
	Career       string     `json:"career" validate:"career"`
	HoursAwarded int        `json:"hours_awarded" validate:"gt=0"`
}

// Normalize trims text fields and maps any "open to all" alias to CareerAll.
func (d ActivityDraft) Normalize() ActivityDraft {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Career = strings.TrimSpace(d.Career)
	if d.Career == "" || IsOpenToAll(d.Career) {
		d.Career = CareerAll
	}
	return d
}

func (d ActivityDraft) Validate() error {
	return ValidateStruct(d)
}

// NewActivity builds an unsaved, non-finalized activity with no enrollments.
func (d ActivityDraft) NewActivity(creatorID string) Activity {
	return Activity{
		Title:              d.Title,
		Description:        d.Description,
		Date:               d.Date,
		Capacity:           d.Capacity,
		Career:             d.Career,
		HoursAwarded:       d.HoursAwarded,
		EnrolledStudentIDs: []string{},
		CreatedBy:          creatorID,
	}
}

// ValidateCapacityChange rejects shrinking capacity below current enrollment.
func ValidateCapacityChange(current Activity, newCapacity int) error {
	if newCapacity < current.EnrolledCount() {
		return NewValidationError(
			errors.Errorf("capacity %d is below the %d students already enrolled", newCapacity, current.EnrolledCount()),
			FieldError{Field: "capacity", Error: "no puede ser menor que la cantidad de inscritos"},
		)
	}
	return nil
}

var validate = newValidator()

var fieldMessages = map[string]string{
	"notblank": "este campo es requerido",
	"gt":       "debe ser mayor que cero",
	"career":   "carrera no válida",
	"required": "este campo es requerido",
	"min":      "es demasiado corto",
	"email":    "correo no válido",
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("career", func(fl validator.FieldLevel) bool {
		return IsActivityCareer(fl.Field().String())
	})
	_ = v.RegisterValidation("regcareer", func(fl validator.FieldLevel) bool {
		return IsRegistrationCareer(fl.Field().String())
	})
	return v
}

// ValidateStruct runs the struct-tag rules and converts failures into a
// ValidationError with one FieldError per failing field.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError(err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = "valor no válido"
		}
		fields = append(fields, FieldError{Field: fe.Field(), Error: msg})
	}
	return NewValidationError(errors.New("datos inválidos"), fields...)
}
