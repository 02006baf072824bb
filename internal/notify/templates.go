package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "reminder"}}
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: auto; padding: 20px; border: 1px solid #eee; border-radius: 10px;">
  <h2 style="color: #2b7a78;">Appointment Reminder</h2>
  <p>Hello <strong>{{.PatientName}}</strong>,</p>
  <p>This is a friendly reminder that you have an upcoming appointment.</p>
  <table style="width: 100%; margin: 20px 0; border-collapse: collapse;">
    <tr><td><strong>Doctor:</strong></td><td>{{.DoctorName}}</td></tr>
    <tr><td><strong>Date &amp; Time:</strong></td><td>{{.When}}</td></tr>
    <tr><td><strong>Clinic Address:</strong></td><td>{{.ClinicAddress}}</td></tr>
  </table>
  <a href="{{.DirectionsLink}}" style="display: inline-block; background-color: #3aafa9; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Get directions</a>
  <p style="margin-top: 20px;">Thank you for using DocSure. Stay healthy!</p>
</div>
{{end}}

{{define "confirmed"}}
<p>Hello {{.Recipient}},</p>
<p>An appointment has been booked with {{.DoctorName}} for {{.PatientName}}.</p>
<p><strong>Specialty:</strong> {{.Specialty}}</p>
<p><strong>Date:</strong> {{.When}}</p>
<p><strong>Clinic Address:</strong> {{.ClinicAddress}}</p>
<p>Thank you for using DocSure.</p>
{{end}}

{{define "status"}}
<p>Hello {{.Recipient}},</p>
<p>The appointment with {{.DoctorName}} for {{.PatientName}} has been <strong>{{.Status}}</strong>.</p>
<p><strong>Specialty:</strong> {{.Specialty}}</p>
<p><strong>Date:</strong> {{.When}}</p>
<p>Thank you for using DocSure.</p>
{{end}}
`))

type reminderView struct {
	PatientName    string
	DoctorName     string
	When           string
	ClinicAddress  string
	DirectionsLink template.URL
}

type bookingView struct {
	Recipient     string
	PatientName   string
	DoctorName    string
	Specialty     string
	When          string
	ClinicAddress string
	Status        string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", name, err)
	}
	return buf.String(), nil
}
