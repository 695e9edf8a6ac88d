package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/fatflowers/payment-engine/internal/models"
	"github.com/fatflowers/payment-engine/internal/repository/repotest"
	"github.com/fatflowers/payment-engine/pkg/logctx"
	"github.com/fatflowers/payment-engine/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecord(t *testing.T) {
	repo := repotest.New()
	svc := New(repo, zap.NewNop().Sugar())
	p := repo.Put(&models.Payment{OrderID: "o-1", UserID: "u-1"})
	ctx := logctx.WithTraceID(context.Background(), "trace-1")

	require.NoError(t, svc.Record(ctx, Entry{
		Provider:  types.PaymentProviderStripe,
		EventType: "charge.created",
		EventID:   "evt_1",
		Payload:   map[string]any{"attempt": 1},
	}.ForPayment(p)))
	require.NoError(t, svc.Record(ctx, Entry{Provider: types.PaymentProviderStripe, EventType: "unmatched", Payload: json.RawMessage(`{"a":1}`)}))
	require.NoError(t, svc.Record(ctx, Entry{Provider: types.PaymentProviderRazorpay, EventType: "garbage", Payload: []byte("not json")}))

	all := repo.Events()
	require.Len(t, all, 3)
	assert.Equal(t, p.ID, *all[0].PaymentID)
	assert.Equal(t, "o-1", *all[0].OrderID)
	assert.Equal(t, "evt_1", *all[0].EventID)
	assert.Equal(t, "trace-1", all[0].TraceID)
	assert.JSONEq(t, `{"attempt":1}`, string(all[0].Payload))

	assert.Nil(t, all[1].PaymentID)
	assert.Nil(t, all[1].EventID)
	assert.JSONEq(t, `{"raw":"not json"}`, string(all[2].Payload))

	listed, err := svc.List(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

type failingRepo struct{ *repotest.Memory }

func (failingRepo) AppendEvent(context.Context, *models.ProviderEventLog) error {
	return errors.New("insert failed")
}

func TestRecord_ReturnsStoreError(t *testing.T) {
	svc := New(failingRepo{repotest.New()}, zap.NewNop().Sugar())
	err := svc.Record(context.Background(), Entry{Provider: types.PaymentProviderStripe, EventType: "x"})
	assert.EqualError(t, err, "insert failed")
}
