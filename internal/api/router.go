package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docsure/booking-service/internal/booking"
)

// BookingService is what the HTTP layer needs from the booking service.
type BookingService interface {
	Location() *time.Location

	CreateBooking(ctx context.Context, in booking.CreateBookingInput) (*booking.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, status booking.Status) (*booking.Booking, error)
	DeleteBooking(ctx context.Context, id uuid.UUID) error

	ListDoctors(ctx context.Context, specialty string) ([]booking.Doctor, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*booking.Doctor, error)
	PublishSlots(ctx context.Context, doctorID uuid.UUID, slots []booking.Slot) (int, error)
	TodayAppointments(ctx context.Context, doctorID uuid.UUID) ([]booking.Booking, error)

	GetPatient(ctx context.Context, id uuid.UUID) (*booking.Patient, error)
	ListPatientBookings(ctx context.Context, patientID uuid.UUID) ([]booking.BookingWithDoctor, error)
	UpdateFamilyMembers(ctx context.Context, patientID uuid.UUID, members []booking.FamilyMember) ([]booking.FamilyMember, error)
}

var _ BookingService = (*booking.Service)(nil)

type RouterConfig struct {
	Service BookingService
	Checks  []Check
	Auth    AuthConfig
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service
	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.Auth))

		r.Route("/bookings", func(r chi.Router) {
			r.With(RequireRole(RolePatient)).Post("/", createBookingHandler(svc))
			r.Get("/{bookingId}", getBookingHandler(svc))
			r.With(RequireRole(RolePatient, RoleDoctor)).Put("/{bookingId}/status", updateBookingStatusHandler(svc))
			r.With(RequireRole(RolePatient, RoleDoctor)).Delete("/{bookingId}", deleteBookingHandler(svc))
		})

		r.Route("/doctors", func(r chi.Router) {
			r.Get("/", listDoctorsHandler(svc))
			r.Get("/{doctorId}", getDoctorHandler(svc))
			r.With(RequireRole(RoleDoctor)).Post("/{doctorId}/slots", publishSlotsHandler(svc))
			r.With(RequireRole(RoleDoctor)).Get("/{doctorId}/appointments/today", todayAppointmentsHandler(svc))
		})

		r.Route("/patients", func(r chi.Router) {
			r.Get("/{patientId}", getPatientHandler(svc))
			r.Get("/{patientId}/bookings", listPatientBookingsHandler(svc))
			r.With(RequireRole(RolePatient)).Put("/{patientId}/family-members", updateFamilyMembersHandler(svc))
		})
	})

	return r
}
