// Package identity carries the authenticated caller handed to the engine by
// the upstream gateway. The engine never resolves credentials itself; it
// only consumes an actor id plus role on every call.
package identity

import "github.com/google/uuid"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// Actor is the per-request identity. For doctors and patients, ID is the
// profile id the directory resolves them to, so ownership checks compare it
// directly against doctor_id / patient_id on a record.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// OwnsDoctor reports whether a is the doctor identified by doctorID.
func (a Actor) OwnsDoctor(doctorID uuid.UUID) bool {
	return a.Role == RoleDoctor && a.ID == doctorID
}

// OwnsPatient reports whether a is the patient identified by patientID.
func (a Actor) OwnsPatient(patientID uuid.UUID) bool {
	return a.Role == RolePatient && a.ID == patientID
}
