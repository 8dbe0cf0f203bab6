package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/kirinyoku/tix-queue/internal/domain"
)

const confirmationSubject = "Reservation confirmed"

var confirmationTmpl = template.Must(template.New("confirmation").Parse(
	`<h1>Your reservation is confirmed</h1>` +
		`<p>Movie: <strong>{{.Movie}}</strong></p>` +
		`<p>Seats: {{.Seats}}</p>` +
		`<p>Showing starts at {{.StartsAt}}</p>`,
))

// ConfirmationEmail renders the message sent when a hold is confirmed.
func ConfirmationEmail(ev domain.Event, seats int) (subject, body string, err error) {
	var buf bytes.Buffer
	err = confirmationTmpl.Execute(&buf, struct {
		Movie    string
		Seats    int
		StartsAt string
	}{
		Movie:    ev.MovieTitle,
		Seats:    seats,
		StartsAt: ev.StartsAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", "", fmt.Errorf("notify.ConfirmationEmail:%w", err)
	}

	return confirmationSubject, buf.String(), nil
}
