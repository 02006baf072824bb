package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docsure/booking-service/internal/reminder"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDoctorNotFound  = fmt.Errorf("doctor %w", ErrNotFound)
	ErrPatientNotFound = fmt.Errorf("patient %w", ErrNotFound)
	ErrBookingNotFound = fmt.Errorf("booking %w", ErrNotFound)
)

// Reservation is everything CreateBooking writes in one transaction.
type Reservation struct {
	Booking     Booking
	Slot        Slot // matched open slot; End overrides the stored end when set
	PatientName string
	Reminder    *reminder.Job // nil when the patient has no contact email
	Event       EventLog
}

// Release is everything DeleteBooking writes in one transaction.
type Release struct {
	BookingID uuid.UUID
	// Reopen derives the slot to put back on the doctor's calendar.
	Reopen func(b *Booking) Slot
	Event  EventLog
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context, specialty string) ([]Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookingsByPatient(ctx context.Context, patientID uuid.UUID) ([]BookingWithDoctor, error)
	ListBookingsForDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Booking, error)

	// Ledger writes. Each runs in a single transaction.
	ReserveSlot(ctx context.Context, r Reservation) (*Booking, error)
	SetBookingStatus(ctx context.Context, id uuid.UUID, from, to Status, ev EventLog) (*Booking, error)
	ReleaseBooking(ctx context.Context, r Release) (*Booking, error)

	// PublishSlots adds open slots, skipping keys already open or booked,
	// and returns how many were inserted.
	PublishSlots(ctx context.Context, doctorID uuid.UUID, slots []Slot) (int, error)
	ReplaceFamilyMembers(ctx context.Context, patientID uuid.UUID, members []FamilyMember) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
