package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/platform/notification"
)

// -- mocks --

type mockAppointmentRepo struct {
	byID      map[uuid.UUID]*Appointment
	updates   []*Appointment
	updateErr error
}

func newMockAppointmentRepo(appts ...*Appointment) *mockAppointmentRepo {
	m := &mockAppointmentRepo{byID: make(map[uuid.UUID]*Appointment)}
	for _, a := range appts {
		m.byID[a.ID] = a
	}
	return m
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *a
	m.updates = append(m.updates, &cp)
	m.byID[a.ID] = a
	return nil
}

func (m *mockAppointmentRepo) List(_ context.Context, _ AppointmentFilter, _, _ int) ([]*Appointment, int, error) {
	var items []*Appointment
	for _, a := range m.byID {
		items = append(items, a)
	}
	return items, len(items), nil
}

type mockBillRepo struct {
	bill *Bill
	err  error
}

func (m *mockBillRepo) GetByAppointment(_ context.Context, _ uuid.UUID) (*Bill, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.bill == nil {
		return nil, ErrNotFound
	}
	return m.bill, nil
}

type mockPrescriptionRepo struct {
	items []*Prescription
	err   error
}

func (m *mockPrescriptionRepo) ListByAppointment(_ context.Context, _ uuid.UUID) ([]*Prescription, error) {
	return m.items, m.err
}

type mockHospitalizationRepo struct {
	byID map[uuid.UUID]*Hospitalization
}

func (m *mockHospitalizationRepo) GetByID(_ context.Context, id uuid.UUID) (*Hospitalization, error) {
	if m.byID == nil {
		return nil, ErrNotFound
	}
	h, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

type mockPublisher struct {
	calls []string
}

func (m *mockPublisher) PublishSlotUpdate(doctorID, date, scheduleID string, _ interface{}) {
	m.calls = append(m.calls, doctorID+"|"+date+"|"+scheduleID)
}

type mockNotifier struct {
	templates []string
	err       error
}

func (m *mockNotifier) SendFromTemplate(_ context.Context, templateID string, _ map[string]string, _ string) (*notification.Notification, error) {
	m.templates = append(m.templates, templateID)
	return &notification.Notification{}, m.err
}

type serviceFixture struct {
	svc       *Service
	appts     *mockAppointmentRepo
	bills     *mockBillRepo
	rxs       *mockPrescriptionRepo
	hosps     *mockHospitalizationRepo
	publisher *mockPublisher
	notifier  *mockNotifier
}

func newFixture(appts ...*Appointment) *serviceFixture {
	f := &serviceFixture{
		appts:     newMockAppointmentRepo(appts...),
		bills:     &mockBillRepo{},
		rxs:       &mockPrescriptionRepo{},
		hosps:     &mockHospitalizationRepo{},
		publisher: &mockPublisher{},
		notifier:  &mockNotifier{},
	}
	f.svc = NewService(f.appts, f.bills, f.rxs, f.hosps, f.publisher, f.notifier, zerolog.Nop())
	return f
}

// -- tests --

func TestCheckEligibility_AppointmentMissing(t *testing.T) {
	f := newFixture()

	res, err := f.svc.CheckEligibility(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CanComplete || res.Code != CodeAppointmentNotFound {
		t.Errorf("expected APPOINTMENT_NOT_FOUND, got %+v", res)
	}
}

func TestCheckEligibility_AllGatesPass(t *testing.T) {
	appt := &Appointment{ID: uuid.New(), Status: StatusConfirmed}
	f := newFixture(appt)
	f.bills.bill = paidBill(500000, 0, 0)
	f.rxs.items = onePrescription()

	res, err := f.svc.CheckEligibility(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CanComplete {
		t.Errorf("expected eligible, got %+v", res)
	}
}

func TestCheckEligibility_HospitalizationLoaded(t *testing.T) {
	hospID := uuid.New()
	appt := &Appointment{ID: uuid.New(), Status: StatusHospitalized, HospitalizationID: &hospID}
	f := newFixture(appt)
	f.bills.bill = paidBill(500000, 0, 200000)
	f.rxs.items = onePrescription()
	f.hosps.byID = map[uuid.UUID]*Hospitalization{
		hospID: {ID: hospID, Status: HospitalizationDischarged},
	}

	res, err := f.svc.CheckEligibility(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CanComplete {
		t.Errorf("expected eligible, got %+v", res)
	}
}

func TestCheckEligibility_RepoFailureIsAnError(t *testing.T) {
	appt := &Appointment{ID: uuid.New(), Status: StatusConfirmed}
	f := newFixture(appt)
	f.bills.err = errors.New("connection refused")
	f.rxs.items = onePrescription()

	if _, err := f.svc.CheckEligibility(context.Background(), appt.ID); err == nil {
		t.Error("expected infrastructure failure to surface as error")
	}
}

func TestHandlePaymentCompleted_FinalizesOnSuccess(t *testing.T) {
	appt := &Appointment{ID: uuid.New(), Status: StatusPendingPayment, PaymentStatus: PaymentPending}
	f := newFixture(appt)
	f.bills.bill = paidBill(500000, 0, 0)
	f.rxs.items = onePrescription()

	res, err := f.svc.HandlePaymentCompleted(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CanComplete {
		t.Fatalf("expected success, got %+v", res)
	}
	if appt.Status != StatusCompleted {
		t.Errorf("expected status completed, got %s", appt.Status)
	}
	if appt.CompletedAt == nil {
		t.Error("expected completion timestamp")
	}
	if appt.PaymentStatus != PaymentCompleted {
		t.Errorf("expected payment status completed, got %s", appt.PaymentStatus)
	}
	if len(f.notifier.templates) != 1 || f.notifier.templates[0] != "appointment-completed" {
		t.Errorf("expected appointment-completed notification, got %v", f.notifier.templates)
	}
}

func TestHandlePaymentCompleted_AdvancesPendingToConfirmed(t *testing.T) {
	appt := &Appointment{ID: uuid.New(), Status: StatusPendingPayment}
	f := newFixture(appt)
	f.bills.bill = &Bill{Consultation: SubBill{Amount: 500000, Status: BillPaid}, Medication: SubBill{Amount: 120000, Status: BillPending}}
	f.rxs.items = onePrescription()

	res, err := f.svc.HandlePaymentCompleted(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CanComplete || res.Code != CodeUnpaid {
		t.Fatalf("expected UNPAID, got %+v", res)
	}
	if appt.Status != StatusConfirmed {
		t.Errorf("expected pending appointment advanced to confirmed, got %s", appt.Status)
	}
	if len(f.notifier.templates) != 1 || f.notifier.templates[0] != "appointment-confirmed" {
		t.Errorf("expected appointment-confirmed notification, got %v", f.notifier.templates)
	}
}

func TestHandlePaymentCompleted_LeavesConfirmedUntouchedOnFailure(t *testing.T) {
	appt := &Appointment{ID: uuid.New(), Status: StatusConfirmed}
	f := newFixture(appt)
	f.bills.bill = paidBill(500000, 0, 0)
	// no prescriptions yet

	res, err := f.svc.HandlePaymentCompleted(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != CodeNoPrescription {
		t.Fatalf("expected NO_PRESCRIPTION, got %+v", res)
	}
	if appt.Status != StatusConfirmed {
		t.Errorf("expected status untouched, got %s", appt.Status)
	}
	if len(f.appts.updates) != 0 {
		t.Errorf("expected no writes, got %d", len(f.appts.updates))
	}
	if len(f.notifier.templates) != 0 {
		t.Errorf("expected no notifications, got %v", f.notifier.templates)
	}
}

func TestHandlePaymentCompleted_MissingAppointment(t *testing.T) {
	f := newFixture()
	res, err := f.svc.HandlePaymentCompleted(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != CodeAppointmentNotFound {
		t.Errorf("expected APPOINTMENT_NOT_FOUND, got %+v", res)
	}
}

func TestFinalize_NotificationFailureDoesNotFail(t *testing.T) {
	appt := &Appointment{ID: uuid.New(), Status: StatusConfirmed}
	f := newFixture(appt)
	f.notifier.err = errors.New("smtp down")

	if err := f.svc.Finalize(context.Background(), appt); err != nil {
		t.Fatalf("notification failure must not fail finalize: %v", err)
	}
	if appt.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", appt.Status)
	}
}

func TestBookSlot_CommitsAndPublishes(t *testing.T) {
	doctorID := uuid.New()
	appt := &Appointment{ID: uuid.New(), DoctorID: doctorID, Status: StatusPending}
	f := newFixture(appt)

	got, err := f.svc.BookSlot(context.Background(), appt.ID, BookSlotRequest{
		ScheduleID: "sched-1", TimeSlotID: "slot-1", Date: "2026-09-01",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ScheduleID != "sched-1" || got.TimeSlotID != "slot-1" || got.Date != "2026-09-01" {
		t.Errorf("slot not committed: %+v", got)
	}
	if got.Status != StatusPendingPayment {
		t.Errorf("expected pending appointment moved to pending_payment, got %s", got.Status)
	}
	want := doctorID.String() + "|2026-09-01|sched-1"
	if len(f.publisher.calls) != 1 || f.publisher.calls[0] != want {
		t.Errorf("expected one slot update publish %q, got %v", want, f.publisher.calls)
	}
}

func TestBookSlot_ValidatesInput(t *testing.T) {
	appt := &Appointment{ID: uuid.New(), Status: StatusPending}
	f := newFixture(appt)

	if _, err := f.svc.BookSlot(context.Background(), appt.ID, BookSlotRequest{ScheduleID: "sched-1"}); err == nil {
		t.Error("expected error for incomplete request")
	}
	if len(f.publisher.calls) != 0 {
		t.Error("expected no publish on validation failure")
	}
}

func TestBookSlot_RejectsTerminalStatuses(t *testing.T) {
	for _, status := range []string{StatusCompleted, StatusCancelled} {
		appt := &Appointment{ID: uuid.New(), Status: status}
		f := newFixture(appt)

		_, err := f.svc.BookSlot(context.Background(), appt.ID, BookSlotRequest{
			ScheduleID: "sched-1", TimeSlotID: "slot-1", Date: "2026-09-01",
		})
		if err == nil {
			t.Errorf("status %s: expected booking rejection", status)
		}
	}
}

func TestBookSlot_NoPublishOnWriteFailure(t *testing.T) {
	appt := &Appointment{ID: uuid.New(), Status: StatusPending}
	f := newFixture(appt)
	f.appts.updateErr = errors.New("write failed")

	if _, err := f.svc.BookSlot(context.Background(), appt.ID, BookSlotRequest{
		ScheduleID: "sched-1", TimeSlotID: "slot-1", Date: "2026-09-01",
	}); err == nil {
		t.Fatal("expected error")
	}
	if len(f.publisher.calls) != 0 {
		t.Error("expected no broadcast for an uncommitted slot")
	}
}
