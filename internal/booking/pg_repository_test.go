package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docsure/booking-service/internal/db/dbtest"
	"github.com/docsure/booking-service/internal/reminder"
)

// Appointments sit far in the future so their reminders never become due
// for a worker polling the same database.
var pgNineAM = time.Date(2099, 3, 2, 9, 0, 0, 0, time.UTC)

type pgFixture struct {
	pool    *pgxpool.Pool
	repo    *PgRepository
	doctor  uuid.UUID
	patient uuid.UUID
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()
	pool := dbtest.Open(t)
	ctx := context.Background()

	f := &pgFixture{pool: pool, repo: NewPgRepository(pool), doctor: uuid.New(), patient: uuid.New()}

	if _, err := pool.Exec(ctx, `
		INSERT INTO doctors (id, name, email, specialties, clinic_address)
		VALUES ($1, 'Dr. Asha Rao', 'asha@example.com', '{Cardiology}', '12 Harbour St')
	`, f.doctor); err != nil {
		t.Fatalf("insert doctor: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO patients (id, name, email) VALUES ($1, 'Sam Patel', 'sam@example.com')
	`, f.patient); err != nil {
		t.Fatalf("insert patient: %v", err)
	}

	n, err := f.repo.PublishSlots(ctx, f.doctor, []Slot{
		{Date: "2099-03-02", Start: "09:00", End: "10:00"},
		{Date: "2099-03-02", Start: "10:00", End: "11:00"},
	})
	if err != nil || n != 2 {
		t.Fatalf("PublishSlots = (%d, %v), want 2 slots", n, err)
	}
	return f
}

func (f *pgFixture) reservation(t *testing.T, slot Slot) Reservation {
	t.Helper()
	b := Booking{
		ID:               uuid.New(),
		DoctorID:         f.doctor,
		PatientID:        f.patient,
		FamilyMemberName: "Mira Patel",
		AppointmentTime:  pgNineAM,
		Specialty:        "Cardiology",
		Status:           StatusScheduled,
	}
	p := reminder.NewPayload("sam@example.com", "Sam Patel", "Dr. Asha Rao", "12 Harbour St", pgNineAM)
	job, err := reminder.NewAppointmentReminder(b.ID, time.Hour, p)
	if err != nil {
		t.Fatalf("NewAppointmentReminder: %v", err)
	}
	return Reservation{
		Booking:     b,
		Slot:        slot,
		PatientName: "Mira Patel",
		Reminder:    job,
		Event:       newEvent(&b.ID, EventBookingCreated, map[string]any{}),
	}
}

func (f *pgFixture) count(t *testing.T, sql string, args ...any) int {
	t.Helper()
	var n int
	if err := f.pool.QueryRow(context.Background(), sql, args...).Scan(&n); err != nil {
		t.Fatalf("count query: %v", err)
	}
	return n
}

func (f *pgFixture) jobStatus(t *testing.T, id uuid.UUID) reminder.JobStatus {
	t.Helper()
	var status reminder.JobStatus
	if err := f.pool.QueryRow(context.Background(), `SELECT status FROM reminder_jobs WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("job status: %v", err)
	}
	return status
}

func TestPgRepository_ReserveSlotSingleWinner(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	slot := Slot{Date: "2099-03-02", Start: "09:00"}

	const racers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
		other  []error
	)
	for i := 0; i < racers; i++ {
		res := f.reservation(t, slot)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.repo.ReserveSlot(ctx, res)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrSlotUnavailable):
				losses++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if wins != 1 || losses != racers-1 {
		t.Fatalf("wins=%d losses=%d, want 1 and %d", wins, losses, racers-1)
	}

	if n := f.count(t, `SELECT count(*) FROM bookings WHERE doctor_id = $1`, f.doctor); n != 1 {
		t.Errorf("bookings = %d, want 1", n)
	}
	if n := f.count(t, `SELECT count(*) FROM reminder_jobs j JOIN bookings b ON b.id = j.booking_id WHERE b.doctor_id = $1`, f.doctor); n != 1 {
		t.Errorf("reminder jobs = %d, want 1", n)
	}

	doc, err := f.repo.GetDoctor(ctx, f.doctor)
	if err != nil {
		t.Fatalf("GetDoctor: %v", err)
	}
	if len(doc.BookedSlots) != 1 || doc.BookedSlots[0].Start != "09:00" || doc.BookedSlots[0].End != "10:00" {
		t.Errorf("booked slots = %+v, want the 09:00-10:00 slot", doc.BookedSlots)
	}
	if len(doc.AvailableSlots) != 1 || doc.AvailableSlots[0].Start != "10:00" {
		t.Errorf("available slots = %+v, want only 10:00", doc.AvailableSlots)
	}
}

func TestPgRepository_ReserveSlotRollsBackOnLaterFailure(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	slot := Slot{Date: "2099-03-02", Start: "09:00"}

	taken, err := reminder.NewJob(reminder.JobTypeAppointmentReminder, pgNineAM, nil, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if err := reminder.InsertJob(ctx, f.pool, taken); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	// The reminder insert runs after the slot move, booking, booked slot and
	// patient entry. A duplicate job id makes it fail.
	res := f.reservation(t, slot)
	res.Reminder.ID = taken.ID
	if _, err := f.repo.ReserveSlot(ctx, res); err == nil {
		t.Fatal("ReserveSlot succeeded with a duplicate reminder id")
	}

	id := res.Booking.ID
	if _, err := f.repo.GetBooking(ctx, id); !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("GetBooking err = %v, want ErrBookingNotFound", err)
	}
	if n := f.count(t, `SELECT count(*) FROM booked_slots WHERE doctor_id = $1`, f.doctor); n != 0 {
		t.Errorf("booked slots = %d, want 0", n)
	}
	if n := f.count(t, `SELECT count(*) FROM patient_appointments WHERE booking_id = $1`, id); n != 0 {
		t.Errorf("patient appointments = %d, want 0", n)
	}
	if n := f.count(t, `SELECT count(*) FROM reminder_jobs WHERE booking_id = $1`, id); n != 0 {
		t.Errorf("reminder jobs = %d, want 0", n)
	}
	if n := f.count(t, `SELECT count(*) FROM event_logs WHERE booking_id = $1`, id); n != 0 {
		t.Errorf("event logs = %d, want 0", n)
	}
	if n := f.count(t, `SELECT count(*) FROM available_slots WHERE doctor_id = $1 AND slot_date = $2 AND start_time = $3`,
		f.doctor, slot.Date, slot.Start); n != 1 {
		t.Fatalf("available 09:00 rows = %d, want 1", n)
	}

	if _, err := f.repo.ReserveSlot(ctx, f.reservation(t, slot)); err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
}

func TestPgRepository_SetBookingStatusCancelsReminder(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	res := f.reservation(t, Slot{Date: "2099-03-02", Start: "09:00"})
	created, err := f.repo.ReserveSlot(ctx, res)
	if err != nil {
		t.Fatalf("ReserveSlot: %v", err)
	}

	ev := newEvent(&created.ID, EventBookingStatusChanged, map[string]any{"status": StatusCancelled})
	updated, err := f.repo.SetBookingStatus(ctx, created.ID, StatusScheduled, StatusCancelled, ev)
	if err != nil {
		t.Fatalf("SetBookingStatus: %v", err)
	}
	if updated.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", updated.Status)
	}
	if got := f.jobStatus(t, res.Reminder.ID); got != reminder.StatusCancelled {
		t.Errorf("reminder status = %s, want cancelled", got)
	}

	doc, err := f.repo.GetDoctor(ctx, f.doctor)
	if err != nil {
		t.Fatalf("GetDoctor: %v", err)
	}
	if len(doc.BookedSlots) != 1 || doc.BookedSlots[0].Status != StatusCancelled {
		t.Errorf("booked slots = %+v, want one cancelled entry", doc.BookedSlots)
	}

	_, err = f.repo.SetBookingStatus(ctx, created.ID, StatusScheduled, StatusCompleted, ev)
	if !errors.Is(err, ErrStatusTransition) {
		t.Errorf("second transition err = %v, want ErrStatusTransition", err)
	}
	_, err = f.repo.SetBookingStatus(ctx, uuid.New(), StatusScheduled, StatusCompleted, ev)
	if !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("unknown booking err = %v, want ErrBookingNotFound", err)
	}
}

func TestPgRepository_ReleaseBookingReopensOneHourSlot(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	res := f.reservation(t, Slot{Date: "2099-03-02", Start: "09:00", End: "09:45"})
	created, err := f.repo.ReserveSlot(ctx, res)
	if err != nil {
		t.Fatalf("ReserveSlot: %v", err)
	}

	deleted, err := f.repo.ReleaseBooking(ctx, Release{
		BookingID: created.ID,
		Reopen: func(b *Booking) Slot {
			return SlotFromTime(b.AppointmentTime.UTC(), SlotDuration)
		},
		Event: newEvent(&created.ID, EventBookingDeleted, map[string]any{}),
	})
	if err != nil {
		t.Fatalf("ReleaseBooking: %v", err)
	}
	if deleted.ID != created.ID {
		t.Errorf("released %s, want %s", deleted.ID, created.ID)
	}

	if _, err := f.repo.GetBooking(ctx, created.ID); !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("GetBooking err = %v, want ErrBookingNotFound", err)
	}
	if n := f.count(t, `SELECT count(*) FROM patient_appointments WHERE booking_id = $1`, created.ID); n != 0 {
		t.Errorf("patient appointments = %d, want 0", n)
	}
	if got := f.jobStatus(t, res.Reminder.ID); got != reminder.StatusCancelled {
		t.Errorf("reminder status = %s, want cancelled", got)
	}

	doc, err := f.repo.GetDoctor(ctx, f.doctor)
	if err != nil {
		t.Fatalf("GetDoctor: %v", err)
	}
	if len(doc.BookedSlots) != 0 {
		t.Errorf("booked slots = %+v, want none", doc.BookedSlots)
	}
	var reopened *Slot
	for i := range doc.AvailableSlots {
		if doc.AvailableSlots[i].Key() == "2099-03-02:09:00" {
			reopened = &doc.AvailableSlots[i]
		}
	}
	if reopened == nil || reopened.End != "10:00" {
		t.Errorf("reopened slot = %+v, want 09:00-10:00", reopened)
	}

	if _, err := f.repo.ReleaseBooking(ctx, Release{BookingID: created.ID}); !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("second release err = %v, want ErrBookingNotFound", err)
	}
}
