package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/docsure/booking-service/internal/booking"
)

// Requests

type SlotRequest struct {
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// SlotInfoRequest is the client's view of the slot being booked. Only End is
// used by the server.
type SlotInfoRequest struct {
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Start string `json:"start"`
	End   string `json:"end" validate:"omitempty,datetime=15:04"`
}

type CreateBookingRequest struct {
	DoctorID         string           `json:"doctorId" validate:"required,uuid"`
	PatientID        string           `json:"patientId" validate:"required,uuid"`
	FamilyMemberName string           `json:"familyMemberName" validate:"max=200"`
	AppointmentTime  string           `json:"appointmentTime" validate:"required"`
	Specialty        string           `json:"specialty" validate:"required,max=100"`
	SlotInfo         *SlotInfoRequest `json:"slotInfo"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type PublishSlotsRequest struct {
	Slots []SlotRequest `json:"slots" validate:"required,min=1,max=500,dive"`
}

type FamilyMemberRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Relationship string `json:"relationship" validate:"required,max=100"`
	DateOfBirth  string `json:"dateOfBirth" validate:"required,datetime=2006-01-02"`
}

type FamilyMembersRequest struct {
	FamilyMembers []FamilyMemberRequest `json:"familyMembers" validate:"dive"`
}

// Responses

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type BookingResponse struct {
	ID               uuid.UUID `json:"id"`
	DoctorID         uuid.UUID `json:"doctorId"`
	PatientID        uuid.UUID `json:"patientId"`
	FamilyMemberName string    `json:"familyMemberName"`
	AppointmentTime  time.Time `json:"appointmentTime"`
	Specialty        string    `json:"specialty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type SlotResponse struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type BookedSlotResponse struct {
	Date        string    `json:"date"`
	Start       string    `json:"start"`
	End         string    `json:"end"`
	BookingID   uuid.UUID `json:"bookingId"`
	PatientID   uuid.UUID `json:"patientId"`
	PatientName string    `json:"patientName"`
	Status      string    `json:"status"`
}

type ClinicLocationResponse struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

type DoctorResponse struct {
	ID             uuid.UUID              `json:"id"`
	Name           string                 `json:"name"`
	Email          string                 `json:"email"`
	Phone          string                 `json:"phone"`
	Bio            string                 `json:"bio"`
	Education      string                 `json:"education"`
	Experience     string                 `json:"experience"`
	Specialties    []string               `json:"specialties"`
	ClinicLocation ClinicLocationResponse `json:"clinicLocation"`
	Rating         float64                `json:"rating"`
	ReviewCount    int                    `json:"reviewCount"`
	AvailableSlots []SlotResponse         `json:"availableSlots"`
	BookedSlots    []BookedSlotResponse   `json:"bookedSlots"`
}

type DoctorSummaryResponse struct {
	ID             uuid.UUID              `json:"id"`
	Name           string                 `json:"name"`
	Specialties    []string               `json:"specialties"`
	ClinicLocation ClinicLocationResponse `json:"clinicLocation"`
}

type PatientBookingResponse struct {
	BookingResponse
	Doctor DoctorSummaryResponse `json:"doctor"`
}

type FamilyMemberResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Relationship string    `json:"relationship"`
	DateOfBirth  string    `json:"dateOfBirth"`
}

type PatientResponse struct {
	ID                uuid.UUID              `json:"id"`
	Name              string                 `json:"name"`
	Email             *string                `json:"email"`
	Phone             string                 `json:"phone"`
	Location          string                 `json:"location"`
	InsuranceProvider string                 `json:"insuranceProvider"`
	PolicyNumber      string                 `json:"policyNumber"`
	FamilyMembers     []FamilyMemberResponse `json:"familyMembers"`
	Appointments      []uuid.UUID            `json:"appointments"`
}

// Mapping

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:               b.ID,
		DoctorID:         b.DoctorID,
		PatientID:        b.PatientID,
		FamilyMemberName: b.FamilyMemberName,
		AppointmentTime:  b.AppointmentTime,
		Specialty:        b.Specialty,
		Status:           string(b.Status),
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func toBookingResponses(bs []booking.Booking) []BookingResponse {
	out := make([]BookingResponse, 0, len(bs))
	for i := range bs {
		out = append(out, toBookingResponse(&bs[i]))
	}
	return out
}

func toClinicLocation(l booking.ClinicLocation) ClinicLocationResponse {
	return ClinicLocationResponse{Address: l.Address, Lat: l.Lat, Lng: l.Lng}
}

func toDoctorResponse(d *booking.Doctor) DoctorResponse {
	resp := DoctorResponse{
		ID:             d.ID,
		Name:           d.Name,
		Email:          d.Email,
		Phone:          d.Phone,
		Bio:            d.Bio,
		Education:      d.Education,
		Experience:     d.Experience,
		Specialties:    d.Specialties,
		ClinicLocation: toClinicLocation(d.ClinicLocation),
		Rating:         d.Rating,
		ReviewCount:    d.ReviewCount,
		AvailableSlots: make([]SlotResponse, 0, len(d.AvailableSlots)),
		BookedSlots:    make([]BookedSlotResponse, 0, len(d.BookedSlots)),
	}
	if resp.Specialties == nil {
		resp.Specialties = []string{}
	}
	for _, s := range d.AvailableSlots {
		resp.AvailableSlots = append(resp.AvailableSlots, SlotResponse{Date: s.Date, Start: s.Start, End: s.End})
	}
	for _, s := range d.BookedSlots {
		resp.BookedSlots = append(resp.BookedSlots, BookedSlotResponse{
			Date:        s.Date,
			Start:       s.Start,
			End:         s.End,
			BookingID:   s.BookingID,
			PatientID:   s.PatientID,
			PatientName: s.PatientName,
			Status:      string(s.Status),
		})
	}
	return resp
}

func toFamilyMemberResponses(members []booking.FamilyMember) []FamilyMemberResponse {
	out := make([]FamilyMemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, FamilyMemberResponse{
			ID:           m.ID,
			Name:         m.Name,
			Relationship: m.Relationship,
			DateOfBirth:  m.DateOfBirth.Format(booking.DateLayout),
		})
	}
	return out
}

func toPatientResponse(p *booking.Patient) PatientResponse {
	resp := PatientResponse{
		ID:                p.ID,
		Name:              p.Name,
		Email:             p.Email,
		Phone:             p.Phone,
		Location:          p.Location,
		InsuranceProvider: p.InsuranceProvider,
		PolicyNumber:      p.PolicyNumber,
		FamilyMembers:     toFamilyMemberResponses(p.FamilyMembers),
		Appointments:      p.Appointments,
	}
	if resp.Appointments == nil {
		resp.Appointments = []uuid.UUID{}
	}
	return resp
}

func toPatientBookingResponse(b *booking.BookingWithDoctor) PatientBookingResponse {
	return PatientBookingResponse{
		BookingResponse: toBookingResponse(&b.Booking),
		Doctor: DoctorSummaryResponse{
			ID:             b.Doctor.ID,
			Name:           b.Doctor.Name,
			Specialties:    b.Doctor.Specialties,
			ClinicLocation: toClinicLocation(b.Doctor.ClinicLocation),
		},
	}
}
