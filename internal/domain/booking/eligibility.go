package booking

import (
	"fmt"
	"strings"
)

// Stable failure codes for the completion eligibility check. Callers branch
// on the code; the message is for display only.
const (
	CodeAppointmentNotFound          = "APPOINTMENT_NOT_FOUND"
	CodeInvalidStatus                = "INVALID_STATUS"
	CodeNoPrescription               = "NO_PRESCRIPTION"
	CodeHospitalizationNotFound      = "HOSPITALIZATION_NOT_FOUND"
	CodeHospitalizationNotDischarged = "HOSPITALIZATION_NOT_DISCHARGED"
	CodeBillNotFound                 = "BILL_NOT_FOUND"
	CodeUnpaid                       = "UNPAID"
)

var completableStatuses = map[string]bool{
	StatusConfirmed:      true,
	StatusHospitalized:   true,
	StatusPendingPayment: true,
}

// Evaluate decides whether an appointment may transition to completed. Gates
// run in a fixed order and short-circuit on the first failure, except the
// payment gate, which reports every unpaid sub-bill at once. The function is
// pure; callers fetch the documents and pass them in, with nil for a bill or
// hospitalization that does not exist.
func Evaluate(appt *Appointment, bill *Bill, prescriptions []*Prescription, hosp *Hospitalization) EligibilityResult {
	if appt == nil {
		return EligibilityResult{
			Code:    CodeAppointmentNotFound,
			Message: "appointment not found",
		}
	}

	if !completableStatuses[appt.Status] {
		return EligibilityResult{
			Code:    CodeInvalidStatus,
			Message: fmt.Sprintf("appointment status %s does not allow completion", appt.Status),
		}
	}

	if len(prescriptions) == 0 {
		return EligibilityResult{
			Code:    CodeNoPrescription,
			Message: "no prescription recorded for this appointment",
		}
	}

	if appt.HospitalizationID != nil {
		if hosp == nil {
			return EligibilityResult{
				Code:    CodeHospitalizationNotFound,
				Message: "hospitalization record not found",
			}
		}
		if hosp.Status != HospitalizationDischarged {
			return EligibilityResult{
				Code:    CodeHospitalizationNotDischarged,
				Message: "patient has not been discharged",
			}
		}
	}

	if bill == nil {
		return EligibilityResult{
			Code:    CodeBillNotFound,
			Message: "no bill found for this appointment",
		}
	}

	var unpaid []string
	for _, part := range []struct {
		label string
		sub   SubBill
	}{
		{PartConsultation, bill.Consultation},
		{PartMedication, bill.Medication},
		{PartHospitalization, bill.Hospitalization},
	} {
		if part.sub.Amount > 0 && part.sub.Status != BillPaid {
			unpaid = append(unpaid, part.label)
		}
	}
	if len(unpaid) > 0 {
		return EligibilityResult{
			Code:        CodeUnpaid,
			Message:     fmt.Sprintf("unpaid items: %s", strings.Join(unpaid, ", ")),
			UnpaidParts: unpaid,
		}
	}

	return EligibilityResult{CanComplete: true}
}
