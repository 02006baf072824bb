package booking

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further status change is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Slot is a doctor's wall-clock availability window in the clinic time zone.
type Slot struct {
	Date  string // YYYY-MM-DD
	Start string // HH:MM
	End   string // HH:MM
}

// Key identifies a slot within one doctor's calendar.
func (s Slot) Key() string {
	return s.Date + ":" + s.Start
}

type BookedSlot struct {
	Slot
	BookingID   uuid.UUID
	PatientID   uuid.UUID
	PatientName string
	Status      Status
}

type ClinicLocation struct {
	Address string
	Lat     *float64
	Lng     *float64
}

type Doctor struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Phone          string
	Bio            string
	Education      string
	Experience     string
	Specialties    []string
	ClinicLocation ClinicLocation
	Rating         float64
	ReviewCount    int
	AvailableSlots []Slot
	BookedSlots    []BookedSlot
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasSpecialty matches case-insensitively.
func (d *Doctor) HasSpecialty(specialty string) bool {
	for _, s := range d.Specialties {
		if strings.EqualFold(s, specialty) {
			return true
		}
	}
	return false
}

type FamilyMember struct {
	ID           uuid.UUID
	Name         string
	Relationship string
	DateOfBirth  time.Time
}

type Patient struct {
	ID                uuid.UUID
	Name              string
	Email             *string
	Phone             string
	Location          string
	InsuranceProvider string
	PolicyNumber      string
	FamilyMembers     []FamilyMember
	Appointments      []uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ContactEmail returns the patient's email or "" when none is on file.
func (p *Patient) ContactEmail() string {
	if p == nil || p.Email == nil {
		return ""
	}
	return strings.TrimSpace(*p.Email)
}

type Booking struct {
	ID               uuid.UUID
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	FamilyMemberName string
	AppointmentTime  time.Time
	Specialty        string
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DoctorSummary is the slice of a doctor shown next to a patient's bookings.
type DoctorSummary struct {
	ID             uuid.UUID
	Name           string
	Specialties    []string
	ClinicLocation ClinicLocation
}

type BookingWithDoctor struct {
	Booking
	Doctor DoctorSummary
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
