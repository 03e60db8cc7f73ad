package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Роль пользователя портала.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleProvider, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// ParseRole нормализует строку роли из токена.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrForbidden, s)
	}
	return r, nil
}

// Actor — уже аутентифицированный пользователь. Для провайдера ID совпадает
// с provider_id, для пациента — с patient_id.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// ValidateActor:
//   - проверяет, что идентификатор задан;
//   - проверяет, что роль известна.
func ValidateActor(a Actor) error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("%w: actor id is empty", ErrForbidden)
	}
	if !a.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrForbidden, a.Role)
	}
	return nil
}

// CanManageAppointments — менять статус, время и провайдера записи.
func (a Actor) CanManageAppointments() bool {
	return a.Role == RoleStaff || a.Role == RoleProvider || a.Role == RoleAdmin
}

// CanManageProvider — провайдер управляет только собой.
func (a Actor) CanManageProvider(providerID uuid.UUID) bool {
	switch a.Role {
	case RoleStaff, RoleAdmin:
		return true
	case RoleProvider:
		return a.ID == providerID
	}
	return false
}

// CanBookFor — пациент записывает только себя, персонал — кого угодно.
func (a Actor) CanBookFor(patientID uuid.UUID) bool {
	switch a.Role {
	case RoleStaff, RoleAdmin:
		return true
	case RolePatient:
		return a.ID == patientID
	}
	return false
}

// CanView — доступ на чтение конкретной записи.
func (a Actor) CanView(patientID, providerID uuid.UUID) bool {
	switch a.Role {
	case RoleStaff, RoleAdmin:
		return true
	case RolePatient:
		return a.ID == patientID
	case RoleProvider:
		return a.ID == providerID
	}
	return false
}
