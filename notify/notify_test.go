package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmdatafocus/inspection_backend/models"
	"github.com/mmdatafocus/inspection_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx() context.Context {
	ctx := utils.SetProjectIdInContext(context.Background(), "proj-1")
	ctx = utils.SetUserNameInContext(ctx, "Inspector Kim")
	return utils.SetCorrelationIdInContext(ctx, "corr-1")
}

func sampleDisputes() []*models.Dispute {
	return []*models.Dispute{
		{ID: 7, LemId: 3, LemDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), DisputeType: models.DisputeTypeLabour,
			ItemName: "J. SMITH", ClaimedHours: decimal.NewFromInt(10), ObservedHours: decimal.NewFromInt(8),
			VarianceHours: decimal.NewFromInt(2), VarianceCost: decimal.NewFromInt(170), EvidenceRef: "proj-1/disputes/7.jpg"},
		{ID: 8, LemId: 3, DisputeType: models.DisputeTypeEquipment, ItemName: "D6 DOZER"},
	}
}

func TestNormalizeRecipient(t *testing.T) {
	r, err := NormalizeRecipient(Recipient{Name: " Acme ", Phone: "(403) 266-1234"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", r.Name)
	assert.Equal(t, "+14032661234", r.Phone)

	_, err = NormalizeRecipient(Recipient{Name: "Acme"})
	assert.True(t, utils.IsValidation(err))

	_, err = NormalizeRecipient(Recipient{Name: "Acme", Phone: "12"})
	assert.True(t, utils.IsValidation(err))
}

func TestBuildNotice(t *testing.T) {
	sign := func(_ context.Context, ref string, _ time.Duration) (string, error) {
		return "https://signed.example/" + ref, nil
	}
	sentAt := time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)
	n := BuildNotice(testCtx(), Recipient{Name: "Acme", Email: "ops@acme.test"}, sampleDisputes(), sentAt, sign)

	assert.Equal(t, "proj-1", n.ProjectId)
	assert.Equal(t, "corr-1", n.CorrelationId)
	assert.Equal(t, "Inspector Kim", n.SentBy)
	require.Len(t, n.Disputes, 2)
	assert.Equal(t, "2024-06-01", n.Disputes[0].LemDate)
	assert.Equal(t, "https://signed.example/proj-1/disputes/7.jpg", n.Disputes[0].EvidenceURL)
	assert.Empty(t, n.Disputes[1].EvidenceURL)
}

func TestBuildNotice_SigningDisabledKeepsReference(t *testing.T) {
	sign := func(context.Context, string, time.Duration) (string, error) {
		return "", utils.ErrEvidenceSigningDisabled
	}
	n := BuildNotice(testCtx(), Recipient{Name: "Acme"}, sampleDisputes()[:1], time.Now(), sign)
	assert.Equal(t, "proj-1/disputes/7.jpg", n.Disputes[0].EvidenceURL)
}

func TestPubSubNotifier(t *testing.T) {
	var gotTopic string
	var gotAttrs map[string]string
	n := &PubSubNotifier{Topic: "disputes", publish: func(_ context.Context, topic string, _ interface{}, attrs map[string]string) (string, error) {
		gotTopic, gotAttrs = topic, attrs
		return "msg-1", nil
	}}
	require.NoError(t, n.Notify(context.Background(), Notice{ProjectId: "proj-1", CorrelationId: "c"}))
	assert.Equal(t, "disputes", gotTopic)
	assert.Equal(t, "proj-1", gotAttrs["project_id"])
	assert.Equal(t, "c", gotAttrs["correlation_id"])

	n.publish = func(context.Context, string, interface{}, map[string]string) (string, error) {
		return "", errors.New("unavailable")
	}
	assert.Error(t, n.Notify(context.Background(), Notice{}))
}

func TestWebhookNotifier(t *testing.T) {
	var got Notice
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "secret")
	notice := BuildNotice(testCtx(), Recipient{Name: "Acme", Email: "ops@acme.test"}, sampleDisputes(), time.Now(), nil)
	require.NoError(t, n.Notify(context.Background(), notice))
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "proj-1", got.ProjectId)
	assert.Len(t, got.Disputes, 2)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"portal down"}`))
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, "").Notify(context.Background(), Notice{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "portal down")
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("NOTIFY_DRIVER", "")
	n, err := NewFromEnv()
	require.NoError(t, err)
	assert.IsType(t, &LogNotifier{}, n)

	t.Setenv("NOTIFY_DRIVER", "webhook")
	t.Setenv("NOTIFY_WEBHOOK_URL", "")
	_, err = NewFromEnv()
	assert.Error(t, err)

	t.Setenv("NOTIFY_DRIVER", "pubsub")
	n, err = NewFromEnv()
	require.NoError(t, err)
	assert.IsType(t, &PubSubNotifier{}, n)
}
