package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docsure/booking-service/internal/reminder"
)

// memRepository applies each ledger write atomically under one mutex, which
// stands in for the Postgres transaction.
type memRepository struct {
	mu       sync.Mutex
	doctors  map[uuid.UUID]*Doctor
	patients map[uuid.UUID]*Patient
	bookings map[uuid.UUID]*Booking
	jobs     map[uuid.UUID]*reminder.Job
	events   []EventLog
}

func newMemRepository() *memRepository {
	return &memRepository{
		doctors:  make(map[uuid.UUID]*Doctor),
		patients: make(map[uuid.UUID]*Patient),
		bookings: make(map[uuid.UUID]*Booking),
		jobs:     make(map[uuid.UUID]*reminder.Job),
	}
}

func (m *memRepository) addDoctor(d Doctor) *Doctor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.doctors[d.ID] = &d
	return &d
}

func (m *memRepository) addPatient(p Patient) *Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.patients[p.ID] = &p
	return &p
}

func (m *memRepository) removePatient(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.patients, id)
}

func (m *memRepository) jobsForBooking(id uuid.UUID) []reminder.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reminder.Job
	for _, j := range m.jobs {
		if j.BookingID != nil && *j.BookingID == id {
			out = append(out, *j)
		}
	}
	return out
}

func (m *memRepository) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func copyDoctor(d *Doctor) *Doctor {
	c := *d
	c.Specialties = append([]string(nil), d.Specialties...)
	c.AvailableSlots = append([]Slot(nil), d.AvailableSlots...)
	c.BookedSlots = append([]BookedSlot(nil), d.BookedSlots...)
	return &c
}

func copyPatient(p *Patient) *Patient {
	c := *p
	c.FamilyMembers = append([]FamilyMember(nil), p.FamilyMembers...)
	c.Appointments = append([]uuid.UUID(nil), p.Appointments...)
	return &c
}

func (m *memRepository) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return copyDoctor(d), nil
}

func (m *memRepository) ListDoctors(_ context.Context, specialty string) ([]Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Doctor
	for _, d := range m.doctors {
		if specialty == "" || d.HasSpecialty(specialty) {
			out = append(out, *copyDoctor(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepository) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return copyPatient(p), nil
}

func (m *memRepository) GetBooking(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	c := *b
	return &c, nil
}

func (m *memRepository) ListBookingsByPatient(_ context.Context, patientID uuid.UUID) ([]BookingWithDoctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BookingWithDoctor
	for _, b := range m.bookings {
		if b.PatientID != patientID {
			continue
		}
		d := m.doctors[b.DoctorID]
		out = append(out, BookingWithDoctor{
			Booking: *b,
			Doctor:  DoctorSummary{ID: d.ID, Name: d.Name, Specialties: d.Specialties, ClinicLocation: d.ClinicLocation},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentTime.After(out[j].AppointmentTime) })
	return out, nil
}

func (m *memRepository) ListBookingsForDoctorBetween(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.DoctorID == doctorID && !b.AppointmentTime.Before(from) && b.AppointmentTime.Before(to) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentTime.Before(out[j].AppointmentTime) })
	return out, nil
}

func (m *memRepository) slotTaken(d *Doctor, s Slot) bool {
	for _, a := range d.AvailableSlots {
		if a.Key() == s.Key() {
			return true
		}
	}
	for _, b := range d.BookedSlots {
		if b.Key() == s.Key() {
			return true
		}
	}
	return false
}

func (m *memRepository) ReserveSlot(_ context.Context, r Reservation) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.doctors[r.Booking.DoctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}

	idx := -1
	for i, s := range d.AvailableSlots {
		if s.Date == r.Slot.Date && s.Start == r.Slot.Start {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrSlotUnavailable
	}
	end := r.Slot.End
	if end == "" {
		end = d.AvailableSlots[idx].End
	}
	d.AvailableSlots = append(d.AvailableSlots[:idx:idx], d.AvailableSlots[idx+1:]...)

	b := r.Booking
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.bookings[b.ID] = &b

	d.BookedSlots = append(d.BookedSlots, BookedSlot{
		Slot:        Slot{Date: r.Slot.Date, Start: r.Slot.Start, End: end},
		BookingID:   b.ID,
		PatientID:   b.PatientID,
		PatientName: r.PatientName,
		Status:      b.Status,
	})

	p := m.patients[b.PatientID]
	p.Appointments = append(p.Appointments, b.ID)

	if r.Reminder != nil {
		j := *r.Reminder
		m.jobs[j.ID] = &j
	}
	m.events = append(m.events, r.Event)

	c := b
	return &c, nil
}

func (m *memRepository) cancelJobs(bookingID uuid.UUID) {
	for _, j := range m.jobs {
		if j.BookingID != nil && *j.BookingID == bookingID && j.Status == reminder.StatusPending {
			j.Status = reminder.StatusCancelled
		}
	}
}

func (m *memRepository) SetBookingStatus(_ context.Context, id uuid.UUID, from, to Status, ev EventLog) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	if b.Status != from {
		return nil, ErrStatusTransition
	}
	b.Status = to
	b.UpdatedAt = time.Now()

	d := m.doctors[b.DoctorID]
	for i := range d.BookedSlots {
		if d.BookedSlots[i].BookingID == id {
			d.BookedSlots[i].Status = to
		}
	}
	if to == StatusCancelled {
		m.cancelJobs(id)
	}
	m.events = append(m.events, ev)

	c := *b
	return &c, nil
}

func (m *memRepository) ReleaseBooking(_ context.Context, r Release) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[r.BookingID]
	if !ok {
		return nil, ErrBookingNotFound
	}

	d := m.doctors[b.DoctorID]
	kept := d.BookedSlots[:0]
	for _, bs := range d.BookedSlots {
		if bs.BookingID != b.ID {
			kept = append(kept, bs)
		}
	}
	d.BookedSlots = kept

	slot := r.Reopen(b)
	if !m.slotTaken(d, slot) {
		d.AvailableSlots = append(d.AvailableSlots, slot)
		sort.Slice(d.AvailableSlots, func(i, j int) bool { return d.AvailableSlots[i].Key() < d.AvailableSlots[j].Key() })
	}

	if p, ok := m.patients[b.PatientID]; ok {
		appts := p.Appointments[:0]
		for _, id := range p.Appointments {
			if id != b.ID {
				appts = append(appts, id)
			}
		}
		p.Appointments = appts
	}

	m.cancelJobs(b.ID)
	delete(m.bookings, b.ID)
	m.events = append(m.events, r.Event)

	c := *b
	return &c, nil
}

func (m *memRepository) PublishSlots(_ context.Context, doctorID uuid.UUID, slots []Slot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.doctors[doctorID]
	if !ok {
		return 0, ErrDoctorNotFound
	}
	n := 0
	for _, s := range slots {
		if m.slotTaken(d, s) {
			continue
		}
		d.AvailableSlots = append(d.AvailableSlots, s)
		n++
	}
	return n, nil
}

func (m *memRepository) ReplaceFamilyMembers(_ context.Context, patientID uuid.UUID, members []FamilyMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[patientID]
	if !ok {
		return ErrPatientNotFound
	}
	p.FamilyMembers = append([]FamilyMember(nil), members...)
	return nil
}

func (m *memRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}
