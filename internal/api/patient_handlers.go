package api

import (
	"net/http"
	"time"

	"github.com/docsure/booking-service/internal/booking"
)

func getPatientHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "patientId", "invalid_patient_id")
		if !ok {
			return
		}

		p, err := svc.GetPatient(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"patient": toPatientResponse(p),
		})
	}
}

func listPatientBookingsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "patientId", "invalid_patient_id")
		if !ok {
			return
		}

		bookings, err := svc.ListPatientBookings(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		out := make([]PatientBookingResponse, 0, len(bookings))
		for i := range bookings {
			out = append(out, toPatientBookingResponse(&bookings[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"bookings": out,
		})
	}
}

func updateFamilyMembersHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "patientId", "invalid_patient_id")
		if !ok {
			return
		}

		var req FamilyMembersRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		members := make([]booking.FamilyMember, 0, len(req.FamilyMembers))
		for _, m := range req.FamilyMembers {
			// validated as YYYY-MM-DD
			dob, _ := time.Parse(booking.DateLayout, m.DateOfBirth)
			members = append(members, booking.FamilyMember{
				Name:         m.Name,
				Relationship: m.Relationship,
				DateOfBirth:  dob,
			})
		}

		updated, err := svc.UpdateFamilyMembers(r.Context(), id, members)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"message":       "Family members updated",
			"familyMembers": toFamilyMemberResponses(updated),
		})
	}
}
