package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when a record does not exist, so
// the service layer can distinguish absence from infrastructure failure.
var ErrNotFound = errors.New("not found")

type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    string
	Date      string
}

type AppointmentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, filter AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
}

type BillRepository interface {
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Bill, error)
}

type PrescriptionRepository interface {
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Prescription, error)
}

type HospitalizationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Hospitalization, error)
}
