// Package notify hands dispute notices to the contractor-facing delivery channel.
package notify

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/inspection_backend/config"
	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultEvidenceURLTTL = 72 * time.Hour

type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// NormalizeRecipient trims the contact fields and formats the phone as E.164.
// A recipient needs an email or a phone.
func NormalizeRecipient(r Recipient) (Recipient, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	if r.Phone != "" {
		phone, err := utils.NormalizePhoneNumber(r.Phone, utils.CountryCode)
		if err != nil {
			return r, &utils.ValidationError{
				Message: "invalid recipient",
				Fields:  map[string]string{"phone": err.Error()},
			}
		}
		r.Phone = phone
	}
	if r.Email == "" && r.Phone == "" {
		return r, utils.NewValidationError("recipient needs an email or a phone number")
	}
	return r, nil
}

type DisputeItem struct {
	DisputeId     int                `json:"dispute_id"`
	LemId         int                `json:"lem_id"`
	LemDate       string             `json:"lem_date"`
	DisputeType   models.DisputeType `json:"dispute_type"`
	ItemName      string             `json:"item_name"`
	ClaimedHours  decimal.Decimal    `json:"claimed_hours"`
	ObservedHours decimal.Decimal    `json:"observed_hours"`
	VarianceHours decimal.Decimal    `json:"variance_hours"`
	VarianceCost  decimal.Decimal    `json:"variance_cost"`
	Notes         string             `json:"notes,omitempty"`
	EvidenceURL   string             `json:"evidence_url,omitempty"`
}

// Notice is the payload every notifier delivers.
type Notice struct {
	ProjectId     string        `json:"project_id"`
	CorrelationId string        `json:"correlation_id,omitempty"`
	Recipient     Recipient     `json:"recipient"`
	SentBy        string        `json:"sent_by"`
	SentAt        time.Time     `json:"sent_at"`
	Disputes      []DisputeItem `json:"disputes"`
}

// Notifier delivers a notice. It must not retry on its own.
type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}

// EvidenceSigner turns an evidence reference into a link the contractor can open.
type EvidenceSigner func(ctx context.Context, ref string, expires time.Duration) (string, error)

// BuildNotice assembles the notice for a set of disputes. Evidence that cannot be signed
// is passed through as its raw reference.
func BuildNotice(ctx context.Context, recipient Recipient, disputes []*models.Dispute, sentAt time.Time, sign EvidenceSigner) Notice {
	projectId, _ := utils.GetProjectIdFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	notice := Notice{
		ProjectId:     projectId,
		CorrelationId: correlationId,
		Recipient:     recipient,
		SentBy:        utils.ActorFromContext(ctx),
		SentAt:        sentAt,
		Disputes:      make([]DisputeItem, 0, len(disputes)),
	}
	for _, d := range disputes {
		item := DisputeItem{
			DisputeId:     d.ID,
			LemId:         d.LemId,
			LemDate:       models.DateKey(d.LemDate),
			DisputeType:   d.DisputeType,
			ItemName:      d.ItemName,
			ClaimedHours:  d.ClaimedHours,
			ObservedHours: d.ObservedHours,
			VarianceHours: d.VarianceHours,
			VarianceCost:  d.VarianceCost,
			Notes:         d.Notes,
		}
		if d.EvidenceRef != "" {
			item.EvidenceURL = d.EvidenceRef
			if sign != nil {
				url, err := sign(ctx, d.EvidenceRef, DefaultEvidenceURLTTL)
				switch {
				case err == nil:
					item.EvidenceURL = url
				case !errors.Is(err, utils.ErrEvidenceSigningDisabled):
					config.LogError(config.GetLogger(), "notify", "BuildNotice", "sign evidence", d.EvidenceRef, err)
				}
			}
		}
		notice.Disputes = append(notice.Disputes, item)
	}
	return notice
}

// LogNotifier only logs notices; used when no delivery channel is configured.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n *LogNotifier) Notify(_ context.Context, notice Notice) error {
	logger := n.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	logger.WithFields(logrus.Fields{
		"project_id":     notice.ProjectId,
		"correlation_id": notice.CorrelationId,
		"recipient":      notice.Recipient.Name,
		"disputes":       len(notice.Disputes),
	}).Info("dispute notice")
	return nil
}

// NewFromEnv picks the notifier named by NOTIFY_DRIVER (pubsub, webhook or log).
func NewFromEnv() (Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("NOTIFY_DRIVER"))) {
	case "pubsub":
		return NewPubSubNotifier(config.EnvOrDefault("NOTIFY_TOPIC", DefaultTopic)), nil
	case "webhook":
		url := strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK_URL"))
		if url == "" {
			return nil, errors.New("NOTIFY_WEBHOOK_URL is required for the webhook notifier")
		}
		return NewWebhookNotifier(url, os.Getenv("NOTIFY_WEBHOOK_TOKEN")), nil
	default:
		return &LogNotifier{Logger: config.GetLogger()}, nil
	}
}
