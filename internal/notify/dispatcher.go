package notify

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/docsure/booking-service/internal/booking"
	"github.com/docsure/booking-service/internal/reminder"
)

const (
	SubjectReminder  = "Appointment Reminder"
	SubjectConfirmed = "Your appointment is confirmed"
	SubjectCompleted = "Your appointment is completed"
	SubjectCancelled = "Your appointment has been cancelled"
)

const whenLayout = "Mon, 02 Jan 2006 at 15:04 MST"

var ErrNoRecipient = errors.New("no recipient email")

// Dispatcher renders and sends booking emails. It implements
// booking.Notifier and provides the appointment-reminder job handler.
type Dispatcher struct {
	mailer Mailer
	loc    *time.Location
	logger zerolog.Logger
}

func NewDispatcher(mailer Mailer, loc *time.Location, logger zerolog.Logger) *Dispatcher {
	if loc == nil {
		loc = time.Local
	}
	return &Dispatcher{
		mailer: mailer,
		loc:    loc,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

var _ booking.Notifier = (*Dispatcher)(nil)

func (d *Dispatcher) when(t time.Time) string {
	return t.In(d.loc).Format(whenLayout)
}

// SendReminder emails the reminder described by p.
func (d *Dispatcher) SendReminder(ctx context.Context, p reminder.Payload) error {
	if p.RecipientEmail == "" {
		return ErrNoRecipient
	}
	html, err := render("reminder", reminderView{
		PatientName:    p.PatientDisplayName,
		DoctorName:     p.DoctorDisplayName,
		When:           d.when(p.AppointmentTime),
		ClinicAddress:  p.ClinicAddress,
		DirectionsLink: template.URL(p.DirectionsLink),
	})
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, Message{To: p.RecipientEmail, Subject: SubjectReminder, HTML: html})
}

// ReminderHandler executes appointment-reminder jobs.
func (d *Dispatcher) ReminderHandler() reminder.HandlerFunc {
	return func(ctx context.Context, job reminder.Job) error {
		p, err := job.DecodePayload()
		if err != nil {
			return err
		}
		if err := d.SendReminder(ctx, p); err != nil {
			return err
		}
		d.logger.Info().
			Str("job_id", job.ID.String()).
			Str("to", p.RecipientEmail).
			Msg("appointment reminder sent")
		return nil
	}
}

func (d *Dispatcher) BookingConfirmed(ctx context.Context, n booking.Notice) error {
	return d.sendToBoth(ctx, n, SubjectConfirmed, "confirmed", "")
}

func (d *Dispatcher) BookingStatusChanged(ctx context.Context, n booking.Notice) error {
	subject := SubjectCompleted
	if n.Booking.Status == booking.StatusCancelled {
		subject = SubjectCancelled
	}
	return d.sendToBoth(ctx, n, subject, "status", string(n.Booking.Status))
}

func (d *Dispatcher) BookingCancelled(ctx context.Context, n booking.Notice) error {
	return d.sendToBoth(ctx, n, SubjectCancelled, "status", string(booking.StatusCancelled))
}

// sendToBoth mails the patient and the doctor. A party without an email is
// skipped; send failures are joined and returned.
func (d *Dispatcher) sendToBoth(ctx context.Context, n booking.Notice, subject, tmpl, status string) error {
	if n.Doctor == nil || n.Patient == nil {
		return nil
	}

	patientName := n.Booking.FamilyMemberName
	if patientName == "" {
		patientName = n.Patient.Name
	}
	view := bookingView{
		PatientName:   patientName,
		DoctorName:    n.Doctor.Name,
		Specialty:     n.Booking.Specialty,
		When:          d.when(n.Booking.AppointmentTime),
		ClinicAddress: n.Doctor.ClinicLocation.Address,
		Status:        status,
	}
	if view.ClinicAddress == "" {
		view.ClinicAddress = reminder.DefaultClinicAddress
	}

	recipients := []struct {
		name  string
		email string
	}{
		{n.Patient.Name, n.Patient.ContactEmail()},
		{n.Doctor.Name, n.Doctor.Email},
	}

	var errs []error
	for _, r := range recipients {
		if r.email == "" {
			d.logger.Debug().Str("booking_id", n.Booking.ID.String()).Str("recipient", r.name).Msg("no email on file, skipping")
			continue
		}
		view.Recipient = r.name
		html, err := render(tmpl, view)
		if err != nil {
			return err
		}
		if err := d.mailer.Send(ctx, Message{To: r.email, Subject: subject, HTML: html}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.email, err))
		}
	}
	return errors.Join(errs...)
}
