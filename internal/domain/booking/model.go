package booking

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses. completed is terminal and only ever set through
// Finalize after a passing eligibility check.
const (
	StatusPending        = "pending"
	StatusPendingPayment = "pending_payment"
	StatusConfirmed      = "confirmed"
	StatusHospitalized   = "hospitalized"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
)

// Payment statuses on the appointment itself.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
)

// Sub-bill statuses.
const (
	BillPending  = "pending"
	BillPaid     = "paid"
	BillFailed   = "failed"
	BillRefunded = "refunded"
)

// Hospitalization statuses.
const (
	HospitalizationAdmitted   = "admitted"
	HospitalizationDischarged = "discharged"
)

// User-facing labels for the three payable portions of a bill.
const (
	PartConsultation    = "phí khám"
	PartMedication      = "phí thuốc"
	PartHospitalization = "phí nằm viện"
)

type Appointment struct {
	ID                uuid.UUID  `json:"id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	DoctorID          uuid.UUID  `json:"doctor_id"`
	ScheduleID        string     `json:"schedule_id"`
	TimeSlotID        string     `json:"time_slot_id"`
	Date              string     `json:"date"`
	Status            string     `json:"status"`
	PaymentStatus     string     `json:"payment_status"`
	HospitalizationID *uuid.UUID `json:"hospitalization_id,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SubBill is one independently payable portion of a Bill. Amounts are in VND.
type SubBill struct {
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type Bill struct {
	ID              uuid.UUID `json:"id"`
	AppointmentID   uuid.UUID `json:"appointment_id"`
	Consultation    SubBill   `json:"consultation"`
	Medication      SubBill   `json:"medication"`
	Hospitalization SubBill   `json:"hospitalization"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Prescription struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Hospitalization struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	Status        string     `json:"status"`
	AdmittedAt    time.Time  `json:"admitted_at"`
	DischargedAt  *time.Time `json:"discharged_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EligibilityResult is computed on demand and never persisted.
type EligibilityResult struct {
	CanComplete bool     `json:"canComplete"`
	Code        string   `json:"code,omitempty"`
	Message     string   `json:"message,omitempty"`
	UnpaidParts []string `json:"unpaidParts,omitempty"`
}
