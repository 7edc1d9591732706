package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, patient_id, doctor_id, schedule_id, time_slot_id, slot_date,
	status, payment_status, hospitalization_id, completed_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduleID, &a.TimeSlotID, &a.Date,
		&a.Status, &a.PaymentStatus, &a.HospitalizationID, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &a, nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments SET schedule_id=$2, time_slot_id=$3, slot_date=$4,
			status=$5, payment_status=$6, hospitalization_id=$7, completed_at=$8, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.ScheduleID, a.TimeSlotID, a.Date,
		a.Status, a.PaymentStatus, a.HospitalizationID, a.CompletedAt)
	return err
}

func (r *appointmentRepoPG) List(ctx context.Context, filter AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	where := `WHERE 1=1`
	args := []interface{}{}
	n := 0
	add := func(clause string, val interface{}) {
		n++
		where += fmt.Sprintf(" AND %s = $%d", clause, n)
		args = append(args, val)
	}
	if filter.DoctorID != nil {
		add("doctor_id", *filter.DoctorID)
	}
	if filter.PatientID != nil {
		add("patient_id", *filter.PatientID)
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	if filter.Date != "" {
		add("slot_date", filter.Date)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+apptCols+` FROM appointments %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, n+1, n+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// =========== Bill Repository ===========

type billRepoPG struct{ pool *pgxpool.Pool }

func NewBillRepoPG(pool *pgxpool.Pool) BillRepository { return &billRepoPG{pool: pool} }

func (r *billRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Bill, error) {
	var b Bill
	err := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id,
			consultation_amount, consultation_status,
			medication_amount, medication_status,
			hospitalization_amount, hospitalization_status,
			created_at, updated_at
		FROM bills WHERE appointment_id = $1`, appointmentID).
		Scan(&b.ID, &b.AppointmentID,
			&b.Consultation.Amount, &b.Consultation.Status,
			&b.Medication.Amount, &b.Medication.Status,
			&b.Hospitalization.Amount, &b.Hospitalization.Status,
			&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &b, nil
}

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Prescription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, notes, created_at
		FROM prescriptions WHERE appointment_id = $1 ORDER BY created_at`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.AppointmentID, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

// =========== Hospitalization Repository ===========

type hospitalizationRepoPG struct{ pool *pgxpool.Pool }

func NewHospitalizationRepoPG(pool *pgxpool.Pool) HospitalizationRepository {
	return &hospitalizationRepoPG{pool: pool}
}

func (r *hospitalizationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospitalization, error) {
	var h Hospitalization
	err := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, status, admitted_at, discharged_at, created_at
		FROM hospitalizations WHERE id = $1`, id).
		Scan(&h.ID, &h.AppointmentID, &h.Status, &h.AdmittedAt, &h.DischargedAt, &h.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &h, nil
}
