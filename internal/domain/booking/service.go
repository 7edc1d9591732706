package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/platform/notification"
)

// SlotPublisher fans a committed slot change out to clients watching the
// doctor's day. Implemented by the realtime gateway.
type SlotPublisher interface {
	PublishSlotUpdate(doctorID, date, scheduleID string, slotInfo interface{})
}

// Notifier delivers templated notifications. Failures are logged and never
// fail the booking workflow.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

type Service struct {
	appointments     AppointmentRepository
	bills            BillRepository
	prescriptions    PrescriptionRepository
	hospitalizations HospitalizationRepository
	publisher        SlotPublisher
	notifier         Notifier
	logger           zerolog.Logger
}

func NewService(
	appointments AppointmentRepository,
	bills BillRepository,
	prescriptions PrescriptionRepository,
	hospitalizations HospitalizationRepository,
	publisher SlotPublisher,
	notifier Notifier,
	logger zerolog.Logger,
) *Service {
	return &Service{
		appointments:     appointments,
		bills:            bills,
		prescriptions:    prescriptions,
		hospitalizations: hospitalizations,
		publisher:        publisher,
		notifier:         notifier,
		logger:           logger,
	}
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, filter AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.List(ctx, filter, limit, offset)
}

// CheckEligibility fetches the appointment's documents and runs the
// completion gates over them. A missing appointment is reported through the
// result code, not an error; errors are reserved for infrastructure failures.
func (s *Service) CheckEligibility(ctx context.Context, appointmentID uuid.UUID) (EligibilityResult, error) {
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if errors.Is(err, ErrNotFound) {
		return Evaluate(nil, nil, nil, nil), nil
	}
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("load appointment: %w", err)
	}
	return s.evaluate(ctx, appt)
}

func (s *Service) evaluate(ctx context.Context, appt *Appointment) (EligibilityResult, error) {
	bill, err := s.bills.GetByAppointment(ctx, appt.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return EligibilityResult{}, fmt.Errorf("load bill: %w", err)
	}

	prescriptions, err := s.prescriptions.ListByAppointment(ctx, appt.ID)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("load prescriptions: %w", err)
	}

	var hosp *Hospitalization
	if appt.HospitalizationID != nil {
		hosp, err = s.hospitalizations.GetByID(ctx, *appt.HospitalizationID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return EligibilityResult{}, fmt.Errorf("load hospitalization: %w", err)
		}
	}

	return Evaluate(appt, bill, prescriptions, hosp), nil
}

// Finalize moves an appointment to completed. Callers invoke it only after a
// passing eligibility check.
func (s *Service) Finalize(ctx context.Context, appt *Appointment) error {
	now := time.Now()
	appt.Status = StatusCompleted
	appt.CompletedAt = &now
	appt.PaymentStatus = PaymentCompleted
	if err := s.appointments.Update(ctx, appt); err != nil {
		return fmt.Errorf("finalize appointment: %w", err)
	}
	s.notify(ctx, appt, "appointment-completed")
	return nil
}

// HandlePaymentCompleted re-runs the eligibility check after a payment event
// and finalizes on success. On failure the only permitted side effect is
// advancing an appointment still in an initial pending state to confirmed;
// the failure code is surfaced to the caller either way.
func (s *Service) HandlePaymentCompleted(ctx context.Context, appointmentID uuid.UUID) (EligibilityResult, error) {
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if errors.Is(err, ErrNotFound) {
		return Evaluate(nil, nil, nil, nil), nil
	}
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("load appointment: %w", err)
	}

	res, err := s.evaluate(ctx, appt)
	if err != nil {
		return EligibilityResult{}, err
	}

	if res.CanComplete {
		if err := s.Finalize(ctx, appt); err != nil {
			return res, err
		}
		return res, nil
	}

	if appt.Status == StatusPending || appt.Status == StatusPendingPayment {
		appt.Status = StatusConfirmed
		if err := s.appointments.Update(ctx, appt); err != nil {
			return res, fmt.Errorf("confirm appointment: %w", err)
		}
		s.notify(ctx, appt, "appointment-confirmed")
	}

	return res, nil
}

type BookSlotRequest struct {
	ScheduleID string `json:"scheduleId"`
	TimeSlotID string `json:"timeSlotId"`
	Date       string `json:"date"`
}

// BookSlot commits a slot onto an appointment and broadcasts the change to
// the room watching the doctor's day. The broadcast happens after the write;
// clients holding a transient lock on the slot learn it is now taken for real.
func (s *Service) BookSlot(ctx context.Context, appointmentID uuid.UUID, req BookSlotRequest) (*Appointment, error) {
	if req.ScheduleID == "" || req.TimeSlotID == "" || req.Date == "" {
		return nil, fmt.Errorf("scheduleId, timeSlotId and date are required")
	}

	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCompleted || appt.Status == StatusCancelled {
		return nil, fmt.Errorf("appointment status %s does not allow booking", appt.Status)
	}

	appt.ScheduleID = req.ScheduleID
	appt.TimeSlotID = req.TimeSlotID
	appt.Date = req.Date
	if appt.Status == StatusPending {
		appt.Status = StatusPendingPayment
	}
	if err := s.appointments.Update(ctx, appt); err != nil {
		return nil, fmt.Errorf("book slot: %w", err)
	}

	if s.publisher != nil {
		s.publisher.PublishSlotUpdate(appt.DoctorID.String(), appt.Date, appt.ScheduleID, map[string]interface{}{
			"timeSlotId":    appt.TimeSlotID,
			"status":        "booked",
			"appointmentId": appt.ID.String(),
		})
	}

	return appt, nil
}

func (s *Service) notify(ctx context.Context, appt *Appointment, templateID string) {
	if s.notifier == nil {
		return
	}
	data := map[string]string{
		"appointment_id": appt.ID.String(),
		"date":           appt.Date,
	}
	if _, err := s.notifier.SendFromTemplate(ctx, templateID, data, appt.PatientID.String()); err != nil {
		s.logger.Warn().Err(err).
			Str("appointment_id", appt.ID.String()).
			Str("template", templateID).
			Msg("notification failed")
	}
}
