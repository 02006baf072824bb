package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docsure/booking-service/internal/booking"
	"github.com/docsure/booking-service/internal/reminder"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []Message
	fail map[string]error
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[msg.To]; err != nil {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newTestDispatcher() (*Dispatcher, *fakeMailer) {
	m := &fakeMailer{fail: map[string]error{}}
	return NewDispatcher(m, time.UTC, zerolog.Nop()), m
}

func strPtr(s string) *string { return &s }

func testNotice(status booking.Status) booking.Notice {
	return booking.Notice{
		Booking: booking.Booking{
			ID:               uuid.New(),
			FamilyMemberName: "Mira Patel",
			AppointmentTime:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			Specialty:        "Cardiology",
			Status:           status,
		},
		Doctor:  &booking.Doctor{Name: "Dr. Asha Rao", Email: "asha@clinic.test"},
		Patient: &booking.Patient{Name: "Sam Patel", Email: strPtr("sam@example.com")},
	}
}

func TestReminderHandler_SendsRenderedReminder(t *testing.T) {
	d, mailer := newTestDispatcher()

	appt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	p := reminder.NewPayload("sam@example.com", "Sam Patel", "Dr. Asha Rao", "221B Baker Street", appt)
	job, err := reminder.NewAppointmentReminder(uuid.New(), time.Hour, p)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.ReminderHandler()(context.Background(), *job); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if msg.To != "sam@example.com" || msg.Subject != SubjectReminder {
		t.Errorf("msg = %s / %s", msg.To, msg.Subject)
	}
	for _, want := range []string{"Sam Patel", "Dr. Asha Rao", "221B Baker Street", "destination=221B%20Baker%20Street", "Sun, 01 Jun 2025 at 09:00 UTC"} {
		if !strings.Contains(msg.HTML, want) {
			t.Errorf("reminder html missing %q", want)
		}
	}
}

func TestReminderHandler_Errors(t *testing.T) {
	d, mailer := newTestDispatcher()

	noRecipient, _ := reminder.NewJob(reminder.JobTypeAppointmentReminder, time.Now(), nil, reminder.Payload{})
	if err := d.ReminderHandler()(context.Background(), *noRecipient); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("err = %v, want ErrNoRecipient", err)
	}

	garbage := reminder.Job{ID: uuid.New(), Payload: []byte(`not json`)}
	if err := d.ReminderHandler()(context.Background(), garbage); err == nil {
		t.Error("expected decode error")
	}

	boom := errors.New("relay down")
	mailer.fail["sam@example.com"] = boom
	p := reminder.NewPayload("sam@example.com", "Sam", "Dr. Rao", "", time.Now())
	job, _ := reminder.NewAppointmentReminder(uuid.New(), time.Hour, p)
	if err := d.ReminderHandler()(context.Background(), *job); !errors.Is(err, boom) {
		t.Errorf("err = %v, want mailer error", err)
	}
}

func TestBookingConfirmed_MailsBothParties(t *testing.T) {
	d, mailer := newTestDispatcher()

	if err := d.BookingConfirmed(context.Background(), testNotice(booking.StatusScheduled)); err != nil {
		t.Fatal(err)
	}
	if len(mailer.sent) != 2 {
		t.Fatalf("sent %d emails, want 2", len(mailer.sent))
	}
	if mailer.sent[0].To != "sam@example.com" || mailer.sent[1].To != "asha@clinic.test" {
		t.Errorf("recipients = %s, %s", mailer.sent[0].To, mailer.sent[1].To)
	}
	if !strings.Contains(mailer.sent[0].HTML, "Mira Patel") {
		t.Error("confirmation should name the family member")
	}
	if !strings.Contains(mailer.sent[0].HTML, reminder.DefaultClinicAddress) {
		t.Error("confirmation should fall back to the default clinic address")
	}
}

func TestBookingStatusChanged_Subjects(t *testing.T) {
	tests := []struct {
		status  booking.Status
		subject string
	}{
		{booking.StatusCompleted, SubjectCompleted},
		{booking.StatusCancelled, SubjectCancelled},
	}
	for _, tt := range tests {
		d, mailer := newTestDispatcher()
		if err := d.BookingStatusChanged(context.Background(), testNotice(tt.status)); err != nil {
			t.Fatal(err)
		}
		for _, msg := range mailer.sent {
			if msg.Subject != tt.subject {
				t.Errorf("%s: subject = %q, want %q", tt.status, msg.Subject, tt.subject)
			}
			if !strings.Contains(msg.HTML, string(tt.status)) {
				t.Errorf("%s: body does not mention status", tt.status)
			}
		}
	}
}

func TestBookingCancelled_SkipsMissingEmail(t *testing.T) {
	d, mailer := newTestDispatcher()
	n := testNotice(booking.StatusScheduled)
	n.Patient.Email = nil

	if err := d.BookingCancelled(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].To != "asha@clinic.test" {
		t.Errorf("sent = %+v, want only the doctor", mailer.sent)
	}
}

func TestSendToBoth_JoinsFailures(t *testing.T) {
	d, mailer := newTestDispatcher()
	boom := errors.New("mailbox full")
	mailer.fail["sam@example.com"] = boom

	err := d.BookingConfirmed(context.Background(), testNotice(booking.StatusScheduled))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want joined mailer error", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].To != "asha@clinic.test" {
		t.Errorf("doctor should still be mailed: %+v", mailer.sent)
	}
}

func TestNewMailer_FallsBackToLog(t *testing.T) {
	if _, ok := NewMailer(configWithHost(""), zerolog.Nop()).(*LogMailer); !ok {
		t.Error("empty host should give a LogMailer")
	}
	if _, ok := NewMailer(configWithHost("smtp.example.com"), zerolog.Nop()).(*SMTPMailer); !ok {
		t.Error("configured host should give an SMTPMailer")
	}
}
