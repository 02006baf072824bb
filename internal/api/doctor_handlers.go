package api

import (
	"net/http"

	"github.com/docsure/booking-service/internal/booking"
)

func listDoctorsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := svc.ListDoctors(r.Context(), r.URL.Query().Get("specialty"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		out := make([]DoctorResponse, 0, len(docs))
		for i := range docs {
			out = append(out, toDoctorResponse(&docs[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"doctors": out,
		})
	}
}

func getDoctorHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "doctorId", "invalid_doctor_id")
		if !ok {
			return
		}

		d, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"doctor":  toDoctorResponse(d),
		})
	}
}

func publishSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "doctorId", "invalid_doctor_id")
		if !ok {
			return
		}

		var req PublishSlotsRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		slots := make([]booking.Slot, 0, len(req.Slots))
		for _, s := range req.Slots {
			slots = append(slots, booking.Slot{Date: s.Date, Start: s.Start, End: s.End})
		}

		added, err := svc.PublishSlots(r.Context(), id, slots)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"added":   added,
			"skipped": len(slots) - added,
		})
	}
}

func todayAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "doctorId", "invalid_doctor_id")
		if !ok {
			return
		}

		bookings, err := svc.TodayAppointments(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"appointments": toBookingResponses(bookings),
		})
	}
}
