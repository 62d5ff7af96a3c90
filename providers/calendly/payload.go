package calendly

const (
	EventInviteeCreated  = "invitee.created"
	EventInviteeCanceled = "invitee.canceled"
)

type webhookEnvelope struct {
	Event     string         `json:"event"`
	CreatedAt string         `json:"created_at"`
	CreatedBy string         `json:"created_by"`
	Payload   inviteePayload `json:"payload"`
}

type inviteePayload struct {
	URI            string         `json:"uri"`
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	Status         string         `json:"status"`
	Event          string         `json:"event"`
	Tracking       tracking       `json:"tracking"`
	ScheduledEvent scheduledEvent `json:"scheduled_event"`
	Cancellation   *cancellation  `json:"cancellation"`
	Rescheduled    bool           `json:"rescheduled"`
	NewInvitee     string         `json:"new_invitee"`
	OldInvitee     string         `json:"old_invitee"`
}

// tracking carries the UTM parameters the booking flow embeds in the
// scheduling link.
type tracking struct {
	UTMCampaign string `json:"utm_campaign"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMContent  string `json:"utm_content"`
	UTMTerm     string `json:"utm_term"`
}

type scheduledEvent struct {
	URI       string `json:"uri"`
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	EventType string `json:"event_type"`
}

type cancellation struct {
	CanceledBy   string `json:"canceled_by"`
	Reason       string `json:"reason"`
	CancelerType string `json:"canceler_type"`
}
