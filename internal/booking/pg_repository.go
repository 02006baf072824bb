package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docsure/booking-service/internal/reminder"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const doctorColumns = `id, name, email, phone, bio, education, experience, specialties,
	clinic_address, clinic_lat, clinic_lng, rating, review_count, created_at, updated_at`

const patientColumns = `id, name, email, phone, location, insurance_provider, policy_number,
	created_at, updated_at`

const bookingColumns = `id, doctor_id, patient_id, family_member_name, appointment_time,
	specialty, status, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&d.Phone,
		&d.Bio,
		&d.Education,
		&d.Experience,
		&d.Specialties,
		&d.ClinicLocation.Address,
		&d.ClinicLocation.Lat,
		&d.ClinicLocation.Lng,
		&d.Rating,
		&d.ReviewCount,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.Phone,
		&p.Location,
		&p.InsuranceProvider,
		&p.PolicyNumber,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking

	err := row.Scan(
		&b.ID,
		&b.DoctorID,
		&b.PatientID,
		&b.FamilyMemberName,
		&b.AppointmentTime,
		&b.Specialty,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	return &b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Doctors

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id)
	d, err := scanDoctor(row)
	if err != nil {
		return nil, err
	}

	docs := []*Doctor{d}
	if err := r.attachSlots(ctx, docs); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PgRepository) ListDoctors(ctx context.Context, specialty string) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE $1 = ''
		   OR EXISTS (SELECT 1 FROM unnest(specialties) s WHERE lower(s) = lower($1))
		ORDER BY rating DESC, name
	`, specialty)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docs := make([]*Doctor, len(result))
	for i := range result {
		docs[i] = &result[i]
	}
	if err := r.attachSlots(ctx, docs); err != nil {
		return nil, err
	}
	return result, nil
}

// attachSlots loads both slot lists for docs in two queries.
func (r *PgRepository) attachSlots(ctx context.Context, docs []*Doctor) error {
	if len(docs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Doctor, len(docs))
	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
		ids = append(ids, d.ID)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT doctor_id, slot_date, start_time, end_time
		FROM available_slots
		WHERE doctor_id = ANY($1)
		ORDER BY slot_date, start_time
	`, ids)
	if err != nil {
		return fmt.Errorf("load available slots: %w", err)
	}
	for rows.Next() {
		var doctorID uuid.UUID
		var s Slot
		if err := rows.Scan(&doctorID, &s.Date, &s.Start, &s.End); err != nil {
			rows.Close()
			return err
		}
		byID[doctorID].AvailableSlots = append(byID[doctorID].AvailableSlots, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT doctor_id, slot_date, start_time, end_time, booking_id, patient_id, patient_name, status
		FROM booked_slots
		WHERE doctor_id = ANY($1)
		ORDER BY slot_date, start_time
	`, ids)
	if err != nil {
		return fmt.Errorf("load booked slots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var doctorID uuid.UUID
		var b BookedSlot
		if err := rows.Scan(&doctorID, &b.Date, &b.Start, &b.End, &b.BookingID, &b.PatientID, &b.PatientName, &b.Status); err != nil {
			return err
		}
		byID[doctorID].BookedSlots = append(byID[doctorID].BookedSlots, b)
	}
	return rows.Err()
}

// Patients

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, relationship, date_of_birth
		FROM family_members
		WHERE patient_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load family members: %w", err)
	}
	for rows.Next() {
		var m FamilyMember
		if err := rows.Scan(&m.ID, &m.Name, &m.Relationship, &m.DateOfBirth); err != nil {
			rows.Close()
			return nil, err
		}
		p.FamilyMembers = append(p.FamilyMembers, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT booking_id
		FROM patient_appointments
		WHERE patient_id = $1
		ORDER BY created_at
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load patient appointments: %w", err)
	}
	p.Appointments, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (r *PgRepository) ReplaceFamilyMembers(ctx context.Context, patientID uuid.UUID, members []FamilyMember) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM patients WHERE id = $1 FOR UPDATE`, patientID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPatientNotFound
		}
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM family_members WHERE patient_id = $1`, patientID); err != nil {
		return fmt.Errorf("clear family members: %w", err)
	}

	batch := &pgx.Batch{}
	for i, m := range members {
		batch.Queue(`
			INSERT INTO family_members (id, patient_id, position, name, relationship, date_of_birth, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, m.ID, patientID, i, m.Name, m.Relationship, m.DateOfBirth)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert family members: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE patients SET updated_at = now() WHERE id = $1`, patientID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Bookings

func (r *PgRepository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

func (r *PgRepository) ListBookingsByPatient(ctx context.Context, patientID uuid.UUID) ([]BookingWithDoctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.doctor_id, b.patient_id, b.family_member_name, b.appointment_time,
		       b.specialty, b.status, b.created_at, b.updated_at,
		       d.name, d.specialties, d.clinic_address, d.clinic_lat, d.clinic_lng
		FROM bookings b
		JOIN doctors d ON d.id = b.doctor_id
		WHERE b.patient_id = $1
		ORDER BY b.appointment_time DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BookingWithDoctor
	for rows.Next() {
		var bw BookingWithDoctor
		b := &bw.Booking
		d := &bw.Doctor
		if err := rows.Scan(
			&b.ID, &b.DoctorID, &b.PatientID, &b.FamilyMemberName, &b.AppointmentTime,
			&b.Specialty, &b.Status, &b.CreatedAt, &b.UpdatedAt,
			&d.Name, &d.Specialties, &d.ClinicLocation.Address, &d.ClinicLocation.Lat, &d.ClinicLocation.Lng,
		); err != nil {
			return nil, err
		}
		d.ID = b.DoctorID
		result = append(result, bw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ListBookingsForDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE doctor_id = $1
		  AND appointment_time >= $2
		  AND appointment_time < $3
		ORDER BY appointment_time
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ReserveSlot moves the slot from available_slots to booked_slots and writes
// the booking, the patient's appointment entry, the reminder job and the
// audit event. The conditional DELETE is what serialises racing bookers:
// the loser finds no row and gets ErrSlotUnavailable.
func (r *PgRepository) ReserveSlot(ctx context.Context, res Reservation) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := res.Booking

	var storedEnd string
	err = tx.QueryRow(ctx, `
		DELETE FROM available_slots
		WHERE doctor_id = $1
		  AND slot_date = $2
		  AND start_time = $3
		RETURNING end_time
	`, b.DoctorID, res.Slot.Date, res.Slot.Start).Scan(&storedEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("take available slot: %w", err)
	}
	end := res.Slot.End
	if end == "" {
		end = storedEnd
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO bookings (id, doctor_id, patient_id, family_member_name, appointment_time, specialty, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+bookingColumns,
		b.ID, b.DoctorID, b.PatientID, b.FamilyMemberName, b.AppointmentTime, b.Specialty, b.Status)
	created, err := scanBooking(row)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booked_slots (booking_id, doctor_id, slot_date, start_time, end_time, patient_id, patient_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, created.ID, created.DoctorID, res.Slot.Date, res.Slot.Start, end, created.PatientID, res.PatientName, created.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("insert booked slot: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO patient_appointments (patient_id, booking_id) VALUES ($1, $2)
	`, created.PatientID, created.ID); err != nil {
		return nil, fmt.Errorf("insert patient appointment: %w", err)
	}

	if res.Reminder != nil {
		if err := reminder.InsertJob(ctx, tx, res.Reminder); err != nil {
			return nil, err
		}
	}

	if err := insertEvent(ctx, tx, res.Event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	return created, nil
}

// SetBookingStatus moves a booking from one status to another. It returns
// ErrStatusTransition when the booking exists but is not in from.
func (r *PgRepository) SetBookingStatus(ctx context.Context, id uuid.UUID, from, to Status, ev EventLog) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns,
		id, to, from)
	updated, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			var exists bool
			if qerr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); qerr != nil {
				return nil, qerr
			}
			if exists {
				return nil, ErrStatusTransition
			}
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE booked_slots SET status = $2 WHERE booking_id = $1`, id, to); err != nil {
		return nil, fmt.Errorf("mirror booked slot status: %w", err)
	}

	if to == StatusCancelled {
		if _, err := reminder.CancelForBooking(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	if err := insertEvent(ctx, tx, ev); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status change: %w", err)
	}
	return updated, nil
}

// ReleaseBooking deletes a booking and puts its slot back on the doctor's
// calendar unless that key has meanwhile been booked again.
func (r *PgRepository) ReleaseBooking(ctx context.Context, rel Release) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, rel.BookingID)
	b, err := scanBooking(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM booked_slots WHERE booking_id = $1`, b.ID); err != nil {
		return nil, fmt.Errorf("delete booked slot: %w", err)
	}

	slot := rel.Reopen(b)
	if _, err := tx.Exec(ctx, `
		INSERT INTO available_slots (doctor_id, slot_date, start_time, end_time)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM booked_slots
			WHERE doctor_id = $1 AND slot_date = $2 AND start_time = $3
		)
		ON CONFLICT DO NOTHING
	`, b.DoctorID, slot.Date, slot.Start, slot.End); err != nil {
		return nil, fmt.Errorf("reopen slot: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM patient_appointments WHERE patient_id = $1 AND booking_id = $2
	`, b.PatientID, b.ID); err != nil {
		return nil, fmt.Errorf("delete patient appointment: %w", err)
	}

	if _, err := reminder.CancelForBooking(ctx, tx, b.ID); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, b.ID); err != nil {
		return nil, fmt.Errorf("delete booking: %w", err)
	}

	if err := insertEvent(ctx, tx, rel.Event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit release: %w", err)
	}
	return b, nil
}

func (r *PgRepository) PublishSlots(ctx context.Context, doctorID uuid.UUID, slots []Slot) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, doctorID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrDoctorNotFound
	}

	inserted := 0
	for _, s := range slots {
		tag, err := tx.Exec(ctx, `
			INSERT INTO available_slots (doctor_id, slot_date, start_time, end_time)
			SELECT $1, $2, $3, $4
			WHERE NOT EXISTS (
				SELECT 1 FROM booked_slots
				WHERE doctor_id = $1 AND slot_date = $2 AND start_time = $3
			)
			ON CONFLICT DO NOTHING
		`, doctorID, s.Date, s.Start, s.End)
		if err != nil {
			return 0, fmt.Errorf("insert slot %s: %w", s.Key(), err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit slots: %w", err)
	}
	return inserted, nil
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	return insertEvent(ctx, r.pool, ev)
}

func insertEvent(ctx context.Context, db reminder.DBTX, ev EventLog) error {
	_, err := db.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
