package notify

import (
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/sqlreports/internal/csvreport"
	"github.com/sqlreports/internal/models"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// DispatchError reports a failed notification to a single recipient. It
// never blocks other recipients of the same report.
type DispatchError struct {
	Recipient string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to send report to %s: %v", e.Recipient, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Message is a built notification, ready to send to each recipient.
type Message struct {
	Subject        string
	Body           string
	HTMLBody       string
	AttachmentPath string
}

type Mailer struct {
	dialer  *gomail.Dialer
	from    string
	wwwRoot string
	db      *gorm.DB
}

type MailerConfig struct {
	SMTPHost string
	SMTPPort int
	From     string
	Password string
	WWWRoot  string
}

func NewMailer(config *MailerConfig, db *gorm.DB) *Mailer {
	return &Mailer{
		dialer:  gomail.NewDialer(config.SMTPHost, config.SMTPPort, config.From, config.Password),
		from:    config.From,
		wwwRoot: config.WWWRoot,
		db:      db,
	}
}

func (m *Mailer) reportLink(report *models.Report) string {
	url := fmt.Sprintf("%s/reports/view?id=%d", m.wwwRoot, report.ID)
	return fmt.Sprintf(`View the report at <a href="%s">%s</a>.`, url, url)
}

// BuildNoDataMessage builds the notification for a run that returned no
// rows.
func (m *Mailer) BuildNoDataMessage(report *models.Report) *Message {
	body := fmt.Sprintf("<p>The report returned no data. %s</p>", m.reportLink(report))
	return &Message{
		Subject:  report.DisplayName + ": no data returned",
		Body:     body,
		HTMLBody: body,
	}
}

// BuildMessage builds the notification for a run that produced a CSV. The
// subject carries the row count; the body links back to the report, adds
// the result table for emailresults, or attaches the CSV for
// emailattachment.
func (m *Mailer) BuildMessage(report *models.Report, csvPath string) (*Message, error) {
	header, rows, err := csvreport.ReadCSV(csvPath)
	if err != nil {
		return nil, err
	}
	countRows := len(rows)

	var subject string
	switch {
	case countRows == 0:
		subject = report.DisplayName + ": no data returned"
	case countRows == 1:
		subject = report.DisplayName + ": 1 row returned"
	default:
		subject = fmt.Sprintf("%s: %d rows returned", report.DisplayName, countRows)
	}

	var body strings.Builder
	if report.Description != "" {
		fmt.Fprintf(&body, "<p>%s</p>", report.Description)
	}
	if countRows == 1 {
		fmt.Fprintf(&body, "<p>The report returned 1 row. %s</p>", m.reportLink(report))
	} else {
		fmt.Fprintf(&body, "<p>The report returned %d rows. %s</p>", countRows, m.reportLink(report))
	}

	message := &Message{
		Subject:  subject,
		Body:     body.String(),
		HTMLBody: body.String(),
	}

	switch report.EmailWhat {
	case models.EmailResults:
		message.HTMLBody = htmlTable(header, rows) + message.HTMLBody
	case models.EmailAttachment:
		message.AttachmentPath = csvPath
	}

	return message, nil
}

func htmlTable(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("<table border=\"1\"><thead><tr>")
	for _, name := range header {
		fmt.Fprintf(&b, "<th>%s</th>", html.EscapeString(name))
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(cell))
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}

// EmailReport sends a report's results to every configured recipient.
// csvPath may be empty when the run produced no data. A failure for one
// recipient is logged and the rest still get their copy.
func (m *Mailer) EmailReport(report *models.Report, csvPath string) error {
	recipients := report.Recipients()
	if len(recipients) == 0 {
		return nil
	}

	var message *Message
	if csvPath != "" {
		var err error
		message, err = m.BuildMessage(report, csvPath)
		if err != nil {
			return err
		}
	} else {
		message = m.BuildNoDataMessage(report)
	}

	for _, username := range recipients {
		user, err := m.resolveRecipient(username, report.Capability)
		if err != nil {
			log.Printf("Report %q: %v", report.DisplayName, &DispatchError{Recipient: username, Err: err})
			continue
		}
		if err := m.send(user, message); err != nil {
			log.Printf("Report %q: %v", report.DisplayName, &DispatchError{Recipient: username, Err: err})
		}
	}
	return nil
}

func (m *Mailer) resolveRecipient(username, capability string) (*models.User, error) {
	var user models.User
	if err := m.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user not found: %v", err)
	}
	if capability != "" && !user.HasCapability(capability) {
		return nil, fmt.Errorf("user does not have the %s capability", capability)
	}
	return &user, nil
}

func (m *Mailer) send(user *models.User, message *Message) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", user.Email)
	msg.SetHeader("Subject", message.Subject)
	msg.SetBody("text/html", message.HTMLBody)
	if message.AttachmentPath != "" {
		msg.Attach(message.AttachmentPath)
	}
	return m.dialer.DialAndSend(msg)
}

// ValidateRecipients checks that the usernames exist and hold the
// report's capability. Used at the edit boundary; returns a message
// describing the first problem found, or empty if all are valid.
func ValidateRecipients(db *gorm.DB, usernames []string, capability string) string {
	for _, username := range usernames {
		var user models.User
		if err := db.Where("username = ?", username).First(&user).Error; err != nil {
			return fmt.Sprintf("user %q not found", username)
		}
		if capability != "" && !user.HasCapability(capability) {
			return fmt.Sprintf("user %q does not have the %s capability", username, capability)
		}
	}
	return ""
}
