// Package reminder is a durable deferred-job queue backed by Postgres.
//
// Jobs are inserted as pending rows and claimed by a Worker once their
// fire_at has passed. Claiming flips the row to claimed before the handler
// runs and claimed rows are never picked up again, so each job executes at
// most once even across restarts and multiple workers.
package reminder

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const JobTypeAppointmentReminder = "appointment-reminder"

// DefaultClinicAddress is used when a doctor has not published an address.
const DefaultClinicAddress = "Clinic address not provided"

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusClaimed   JobStatus = "claimed"
	StatusDone      JobStatus = "done"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

type Job struct {
	ID        uuid.UUID
	BookingID *uuid.UUID
	JobType   string
	FireAt    time.Time
	Payload   json.RawMessage
	Status    JobStatus
	Attempts  int
	LastError *string
	ClaimedAt *time.Time
	ClaimedBy *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Payload is the data an appointment-reminder job carries.
type Payload struct {
	RecipientEmail     string    `json:"recipientEmail"`
	PatientDisplayName string    `json:"patientDisplayName"`
	DoctorDisplayName  string    `json:"doctorDisplayName"`
	AppointmentTime    time.Time `json:"appointmentTime"`
	ClinicAddress      string    `json:"clinicAddress"`
	DirectionsLink     string    `json:"directionsLink"`
}

// FireAt is the instant a reminder for appointmentTime should go out.
func FireAt(appointmentTime time.Time, lead time.Duration) time.Time {
	return appointmentTime.Add(-lead)
}

// DirectionsLink builds a map-directions URL for the clinic address.
// Spaces are encoded as %20 so the link survives mail clients that
// mangle '+'.
func DirectionsLink(address string) string {
	if address == "" {
		address = DefaultClinicAddress
	}
	dest := strings.ReplaceAll(url.QueryEscape(address), "+", "%20")
	return "https://www.google.com/maps/dir/?api=1&destination=" + dest
}

// NewPayload fills in the derived fields (address fallback, directions link).
func NewPayload(recipient, patientName, doctorName, clinicAddress string, appointmentTime time.Time) Payload {
	if clinicAddress == "" {
		clinicAddress = DefaultClinicAddress
	}
	return Payload{
		RecipientEmail:     recipient,
		PatientDisplayName: patientName,
		DoctorDisplayName:  doctorName,
		AppointmentTime:    appointmentTime,
		ClinicAddress:      clinicAddress,
		DirectionsLink:     DirectionsLink(clinicAddress),
	}
}

// NewJob builds a pending job. payload is marshalled to JSON.
func NewJob(jobType string, fireAt time.Time, bookingID *uuid.UUID, payload any) (*Job, error) {
	if jobType == "" {
		return nil, fmt.Errorf("job type is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", jobType, err)
	}
	return &Job{
		ID:        uuid.New(),
		BookingID: bookingID,
		JobType:   jobType,
		FireAt:    fireAt,
		Payload:   data,
		Status:    StatusPending,
	}, nil
}

// NewAppointmentReminder builds the reminder job for a booking.
func NewAppointmentReminder(bookingID uuid.UUID, lead time.Duration, p Payload) (*Job, error) {
	id := bookingID
	return NewJob(JobTypeAppointmentReminder, FireAt(p.AppointmentTime, lead), &id, p)
}

// DecodePayload unmarshals an appointment-reminder payload.
func (j Job) DecodePayload() (Payload, error) {
	var p Payload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload for job %s: %w", j.ID, err)
	}
	return p, nil
}
