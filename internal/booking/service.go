package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docsure/booking-service/internal/config"
	redisclient "github.com/docsure/booking-service/internal/redis"
	"github.com/docsure/booking-service/internal/reminder"
)

const (
	EventBookingCreated       = "BOOKING_CREATED"
	EventBookingStatusChanged = "BOOKING_STATUS_CHANGED"
	EventBookingDeleted       = "BOOKING_DELETED"
	EventSlotsPublished       = "SLOTS_PUBLISHED"
	EventFamilyUpdated        = "FAMILY_MEMBERS_UPDATED"
)

var (
	ErrSlotUnavailable  = errors.New("requested time is not an available slot")
	ErrSlotBeingBooked  = fmt.Errorf("%w: slot is currently being booked", ErrSlotUnavailable)
	ErrInvalidStatus    = errors.New("status must be 'completed' or 'cancelled'")
	ErrStatusTransition = errors.New("invalid status transition")
	ErrInvalidSlot      = errors.New("invalid slot")
)

// Notice carries what a notification needs about a booking.
type Notice struct {
	Booking Booking
	Doctor  *Doctor
	Patient *Patient
}

// Notifier sends booking notifications. Errors are logged by the service
// and never undo a committed change.
type Notifier interface {
	BookingConfirmed(ctx context.Context, n Notice) error
	BookingStatusChanged(ctx context.Context, n Notice) error
	BookingCancelled(ctx context.Context, n Notice) error
}

type noopNotifier struct{}

func (noopNotifier) BookingConfirmed(context.Context, Notice) error     { return nil }
func (noopNotifier) BookingStatusChanged(context.Context, Notice) error { return nil }
func (noopNotifier) BookingCancelled(context.Context, Notice) error     { return nil }

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier Notifier
	lead     time.Duration
	loc      *time.Location
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, notifier Notifier, cfg config.Config, logger zerolog.Logger) *Service {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		lead:     cfg.ReminderLead,
		loc:      cfg.Location(),
		logger:   logger.With().Str("component", "booking").Logger(),
		now:      time.Now,
	}
}

// Location is the clinic time zone slots are expressed in.
func (s *Service) Location() *time.Location { return s.loc }

type CreateBookingInput struct {
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	FamilyMemberName string
	AppointmentTime  time.Time
	Specialty        string
	// SlotInfo is the slot the client believes it is booking. Only End is
	// used; the key always comes from the matched open slot.
	SlotInfo *Slot
}

// CreateBooking reserves the doctor's open slot at the requested time,
// records the booking and schedules its reminder in one transaction, then
// sends confirmations.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*Booking, error) {
	doctor, err := s.repo.GetDoctor(ctx, in.DoctorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	patient, err := s.repo.GetPatient(ctx, in.PatientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	at := in.AppointmentTime.In(s.loc)
	idx, ok := MatchSlot(doctor.AvailableSlots, at)
	if !ok {
		return nil, ErrSlotUnavailable
	}
	slot := doctor.AvailableSlots[idx]
	if in.SlotInfo != nil && strings.TrimSpace(in.SlotInfo.End) != "" {
		// The key stays as stored; only the end comes from the caller and
		// it must still make a valid slot.
		override := slot
		override.End = in.SlotInfo.End
		checked, err := NormalizeSlot(override)
		if err != nil {
			return nil, err
		}
		slot.End = checked.End
	}

	b := Booking{
		ID:               uuid.New(),
		DoctorID:         doctor.ID,
		PatientID:        patient.ID,
		FamilyMemberName: strings.TrimSpace(in.FamilyMemberName),
		AppointmentTime:  at,
		Specialty:        in.Specialty,
		Status:           StatusScheduled,
	}

	patientName := b.FamilyMemberName
	if patientName == "" {
		patientName = patient.Name
	}

	res := Reservation{
		Booking:     b,
		Slot:        slot,
		PatientName: patientName,
		Event: newEvent(&b.ID, EventBookingCreated, map[string]any{
			"doctor_id":        doctor.ID.String(),
			"patient_id":       patient.ID.String(),
			"slot_date":        slot.Date,
			"slot_start":       slot.Start,
			"appointment_time": at,
		}),
	}

	if email := patient.ContactEmail(); email != "" {
		p := reminder.NewPayload(email, patient.Name, doctor.Name, doctor.ClinicLocation.Address, at)
		job, err := reminder.NewAppointmentReminder(b.ID, s.lead, p)
		if err != nil {
			return nil, err
		}
		res.Reminder = job
	} else {
		s.logger.Warn().
			Str("patient_id", patient.ID.String()).
			Msg("patient has no email on file, reminder not scheduled")
	}

	var created *Booking
	reserve := func(lockCtx context.Context) error {
		var err error
		created, err = s.repo.ReserveSlot(lockCtx, res)
		return err
	}

	lockKey := doctor.ID.String() + ":" + slot.Key()
	err = s.locker.WithSlotLock(ctx, lockKey, reserve)
	if errors.Is(err, redisclient.ErrLockUnavailable) {
		s.logger.Warn().Err(err).Str("slot", lockKey).Msg("slot lock unavailable, relying on database")
		err = reserve(ctx)
	}
	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return nil, ErrSlotBeingBooked
		case errors.Is(err, ErrSlotUnavailable):
			return nil, err
		}
		return nil, fmt.Errorf("reserve slot: %w", err)
	}

	s.logger.Info().
		Str("booking_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("slot", slot.Key()).
		Msg("booking created")

	s.notify(ctx, "booking_confirmed", s.notifier.BookingConfirmed, Notice{Booking: *created, Doctor: doctor, Patient: patient})

	return created, nil
}

// UpdateBookingStatus completes or cancels a scheduled booking. Setting the
// status a booking already has is a no-op. The slot stays booked.
func (s *Service) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status Status) (*Booking, error) {
	if status != StatusCompleted && status != StatusCancelled {
		return nil, ErrInvalidStatus
	}

	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}

	if current.Status == status {
		return current, nil
	}
	if current.Status.Terminal() {
		return nil, fmt.Errorf("%w: booking is already %s", ErrStatusTransition, current.Status)
	}

	ev := newEvent(&id, EventBookingStatusChanged, map[string]any{
		"from": current.Status,
		"to":   status,
	})
	updated, err := s.repo.SetBookingStatus(ctx, id, StatusScheduled, status, ev)
	if err != nil {
		if errors.Is(err, ErrStatusTransition) {
			// Lost a race with another update; same outcome is still a no-op.
			if latest, gerr := s.repo.GetBooking(ctx, id); gerr == nil && latest.Status == status {
				return latest, nil
			}
			return nil, err
		}
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	s.logger.Info().
		Str("booking_id", id.String()).
		Str("status", string(status)).
		Msg("booking status updated")

	if n, ok := s.loadNotice(ctx, *updated); ok {
		s.notify(ctx, "booking_status_changed", s.notifier.BookingStatusChanged, n)
	}

	return updated, nil
}

// DeleteBooking removes a booking and reopens a one-hour slot at its
// appointment time.
func (s *Service) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	rel := Release{
		BookingID: id,
		Reopen: func(b *Booking) Slot {
			return SlotFromTime(b.AppointmentTime.In(s.loc), SlotDuration)
		},
		Event: newEvent(&id, EventBookingDeleted, map[string]any{}),
	}

	deleted, err := s.repo.ReleaseBooking(ctx, rel)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete booking: %w", err)
	}

	s.logger.Info().Str("booking_id", id.String()).Msg("booking deleted, slot reopened")

	if n, ok := s.loadNotice(ctx, *deleted); ok {
		s.notify(ctx, "booking_cancelled", s.notifier.BookingCancelled, n)
	}

	return nil
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetDoctor(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return d, nil
}

// ListDoctors returns every doctor, or those offering specialty when it is
// not empty.
func (s *Service) ListDoctors(ctx context.Context, specialty string) ([]Doctor, error) {
	docs, err := s.repo.ListDoctors(ctx, strings.TrimSpace(specialty))
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return docs, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatient(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (s *Service) ListPatientBookings(ctx context.Context, patientID uuid.UUID) ([]BookingWithDoctor, error) {
	if _, err := s.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	bookings, err := s.repo.ListBookingsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient bookings: %w", err)
	}
	return bookings, nil
}

// TodayAppointments lists a doctor's bookings for the current day in the
// clinic time zone.
func (s *Service) TodayAppointments(ctx context.Context, doctorID uuid.UUID) ([]Booking, error) {
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 0, 1)

	bookings, err := s.repo.ListBookingsForDoctorBetween(ctx, doctorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list today's appointments: %w", err)
	}
	return bookings, nil
}

// PublishSlots validates and deduplicates slots by (date, start) and adds
// them to the doctor's open calendar. Keys already open or booked are
// skipped. It returns how many slots were added.
func (s *Service) PublishSlots(ctx context.Context, doctorID uuid.UUID, slots []Slot) (int, error) {
	seen := make(map[string]bool, len(slots))
	clean := make([]Slot, 0, len(slots))
	for _, raw := range slots {
		slot, err := NormalizeSlot(raw)
		if err != nil {
			return 0, err
		}
		if seen[slot.Key()] {
			continue
		}
		seen[slot.Key()] = true
		clean = append(clean, slot)
	}

	n, err := s.repo.PublishSlots(ctx, doctorID, clean)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("publish slots: %w", err)
	}

	s.logEvent(ctx, nil, EventSlotsPublished, map[string]any{
		"doctor_id": doctorID.String(),
		"requested": len(slots),
		"added":     n,
	})
	return n, nil
}

// UpdateFamilyMembers reconciles the patient's family list with incoming
// and returns the stored result.
func (s *Service) UpdateFamilyMembers(ctx context.Context, patientID uuid.UUID, incoming []FamilyMember) ([]FamilyMember, error) {
	patient, err := s.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	merged := ReconcileFamilyMembers(patient.FamilyMembers, incoming)
	if err := s.repo.ReplaceFamilyMembers(ctx, patientID, merged); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update family members: %w", err)
	}

	s.logEvent(ctx, nil, EventFamilyUpdated, map[string]any{
		"patient_id": patientID.String(),
		"before":     len(patient.FamilyMembers),
		"after":      len(merged),
	})
	return merged, nil
}

// loadNotice resolves both parties of a booking. ok is false when either
// is gone, in which case no notification is sent.
func (s *Service) loadNotice(ctx context.Context, b Booking) (Notice, bool) {
	doctor, err := s.repo.GetDoctor(ctx, b.DoctorID)
	if err != nil {
		s.logger.Debug().Err(err).Str("booking_id", b.ID.String()).Msg("skipping notification, doctor not resolved")
		return Notice{}, false
	}
	patient, err := s.repo.GetPatient(ctx, b.PatientID)
	if err != nil {
		s.logger.Debug().Err(err).Str("booking_id", b.ID.String()).Msg("skipping notification, patient not resolved")
		return Notice{}, false
	}
	return Notice{Booking: b, Doctor: doctor, Patient: patient}, true
}

func (s *Service) notify(ctx context.Context, kind string, send func(context.Context, Notice) error, n Notice) {
	if err := send(ctx, n); err != nil {
		s.logger.Warn().
			Err(err).
			Str("booking_id", n.Booking.ID.String()).
			Str("notification", kind).
			Msg("notification failed")
	}
}

func newEvent(bookingID *uuid.UUID, eventType string, payload map[string]any) EventLog {
	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}
	return EventLog{
		EventType: eventType,
		BookingID: bookingID,
		Payload:   data,
		CreatedAt: time.Now(),
	}
}

func (s *Service) logEvent(ctx context.Context, bookingID *uuid.UUID, eventType string, payload map[string]any) {
	if err := s.repo.InsertEvent(ctx, newEvent(bookingID, eventType, payload)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to insert event log")
	}
}
