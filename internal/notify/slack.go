package notify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/slack-go/slack"
)

// SlackNotifier posts scheduled-run failures to an ops channel.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier returns nil when no token is configured, and callers
// are expected to handle that.
func NewSlackNotifier(token, channel string) *SlackNotifier {
	if token == "" || channel == "" {
		return nil
	}
	return &SlackNotifier{
		client:  slack.New(token),
		channel: channel,
	}
}

// NotifyRunFailure posts a notice that a scheduled report's run failed.
func (s *SlackNotifier) NotifyRunFailure(reportName string, runErr error) error {
	attachment := slack.Attachment{
		Color: "#ff0000",
		Title: fmt.Sprintf("Scheduled report failed: %s", reportName),
		Fields: []slack.AttachmentField{
			{
				Title: "Report",
				Value: reportName,
				Short: true,
			},
			{
				Title: "Error",
				Value: runErr.Error(),
			},
		},
		Footer: "SQL Query Reports",
		Ts:     json.Number(strconv.FormatInt(time.Now().Unix(), 10)),
	}

	_, _, err := s.client.PostMessage(
		s.channel,
		slack.MsgOptionAttachments(attachment),
	)
	return err
}
