package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// User-facing messages.
const (
	MsgUnauthenticated = "Usuario no autenticado"
	MsgLoadActivities  = "Error al cargar actividades"
	MsgNetwork         = "Error de red"
	MsgCreateActivity  = "Error al crear actividad"
	MsgUpdateActivity  = "Error al actualizar actividad"
	MsgEnroll          = "Error al inscribirse en la actividad"
	MsgUnenroll        = "Error al desinscribirse de la actividad"
	MsgFinalize        = "Error al marcar actividad como completada"
	MsgDelete          = "Error al eliminar actividad"
	MsgUnknown         = "Error desconocido"
)

// AuthError is returned when an operation requires an authenticated user.
type AuthError struct {
	Message string
}

func NewAuthError(msg string) error {
	if msg == "" {
		msg = MsgUnauthenticated
	}
	return &AuthError{Message: msg}
}

func (e *AuthError) Error() string { return e.Message }

// FieldError is used to indicate an error with a specific field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RemoteError wraps a transport or permission failure from a backing store.
// The message of the underlying error is passed through unchanged.
type RemoteError struct {
	Op  string
	Err error
}

func NewRemoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Err: err}
}

func (e *RemoteError) Error() string { return e.Err.Error() }

func (e *RemoteError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsRemote(err error) bool {
	var target *RemoteError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// ValidationFields returns the field errors carried by err, if any.
func ValidationFields(err error) []FieldError {
	var target *ValidationError
	if errors.As(err, &target) {
		return target.Fields
	}
	return nil
}

// knownMessages maps substrings of provider errors to user-facing text.
// Order matters: the first match wins.
var knownMessages = []struct {
	substr string
	msg    string
}{
	{"wrong password", "La contraseña es incorrecta"},
	{"password is invalid", "La contraseña es incorrecta"},
	{"invalid credentials", "Correo o contraseña incorrectos"},
	{"no user record", "No existe una cuenta con ese correo"},
	{"user not found", "No existe una cuenta con ese correo"},
	{"email already in use", "El correo ya está registrado"},
	{"already in use by another account", "El correo ya está registrado"},
	{"badly formatted", "El correo no tiene un formato válido"},
	{"weak password", "La contraseña debe tener al menos 6 caracteres"},
	{"at least 6 characters", "La contraseña debe tener al menos 6 caracteres"},
	{"permission denied", "No tienes permisos para realizar esta acción"},
	{"connection refused", MsgNetwork},
	{"network", MsgNetwork},
	{"timeout", MsgNetwork},
	{"circuit breaker is open", "Servicio no disponible, intenta más tarde"},
}

// HumanMessage classifies a raw provider error message into user-facing
// text. Unknown messages are passed through verbatim; an empty message
// becomes fallback.
func HumanMessage(raw, fallback string) string {
	lower := strings.ToLower(raw)
	for _, km := range knownMessages {
		if strings.Contains(lower, km.substr) {
			return km.msg
		}
	}
	if strings.TrimSpace(raw) == "" {
		if fallback == "" {
			return MsgUnknown
		}
		return fallback
	}
	return raw
}

// ErrorMessage is HumanMessage applied to an error value.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	return HumanMessage(err.Error(), fallback)
}
