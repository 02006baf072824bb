package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docsure/booking-service/internal/booking"
)

func createBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		at, err := booking.ParseAppointmentTime(req.AppointmentTime, svc.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_time", "appointmentTime must be an ISO-8601 timestamp")
			return
		}

		in := booking.CreateBookingInput{
			DoctorID:         uuid.MustParse(req.DoctorID),
			PatientID:        uuid.MustParse(req.PatientID),
			FamilyMemberName: req.FamilyMemberName,
			AppointmentTime:  at,
			Specialty:        req.Specialty,
		}
		if req.SlotInfo != nil {
			in.SlotInfo = &booking.Slot{Date: req.SlotInfo.Date, Start: req.SlotInfo.Start, End: req.SlotInfo.End}
		}

		b, err := svc.CreateBooking(r.Context(), in)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"booking": toBookingResponse(b),
		})
	}
}

func getBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "bookingId", "invalid_booking_id")
		if !ok {
			return
		}

		b, err := svc.GetBooking(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"booking": toBookingResponse(b),
		})
	}
}

func updateBookingStatusHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "bookingId", "invalid_booking_id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		status := booking.Status(strings.ToLower(strings.TrimSpace(req.Status)))
		b, err := svc.UpdateBookingStatus(r.Context(), id, status)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": fmt.Sprintf("Booking status updated to '%s'.", b.Status),
			"booking": toBookingResponse(b),
		})
	}
}

func deleteBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "bookingId", "invalid_booking_id")
		if !ok {
			return
		}

		if err := svc.DeleteBooking(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Booking deleted and slot restored.",
		})
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusBadRequest, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, booking.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
	case errors.Is(err, booking.ErrStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
