package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fatflowers/payment-engine/internal/models"
	"github.com/fatflowers/payment-engine/pkg/types"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("boom")))
	require.False(t, IsUniqueViolation(nil))
}

func TestTransitionColumns(t *testing.T) {
	cols, err := transitionColumns(models.PaymentUpdate{
		Status:           types.PaymentStatusPending,
		GatewayOrderID:   lo.ToPtr("order_123"),
		SetFailureReason: true,
	})
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusPending, cols["status"])
	require.Equal(t, "order_123", cols["gateway_order_id"])
	v, ok := cols["failure_reason"]
	require.True(t, ok)
	require.Nil(t, v)
	require.NotContains(t, cols, "gateway_payment_id")
	require.NotContains(t, cols, "metadata")
}

func TestTransitionColumns_LeavesFailureReasonUnlessAsked(t *testing.T) {
	cols, err := transitionColumns(models.PaymentUpdate{
		Status:        types.PaymentStatusFailed,
		FailureReason: lo.ToPtr("ignored"),
		Metadata:      map[string]any{"clientSecret": "pi_secret"},
	})
	require.NoError(t, err)
	require.NotContains(t, cols, "failure_reason")
	require.Contains(t, cols, "metadata")
}

func TestErrDuplicateOrderWrapping(t *testing.T) {
	err := fmt.Errorf("%w: %s", ErrDuplicateOrder, "o-1")
	require.ErrorIs(t, err, ErrDuplicateOrder)
}

func TestGetPayment_MalformedIDIsNotFound(t *testing.T) {
	// no database is needed: the id is rejected before querying
	r := NewGormRepository(nil)
	_, err := r.GetPayment(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, ErrNotFound)
}

func dryRunRepository(t *testing.T) *GormRepository {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=payments dbname=payments sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return NewGormRepository(db)
}

func TestTransition_ConditionalUpdateSQL(t *testing.T) {
	r := dryRunRepository(t)
	cols, err := transitionColumns(models.PaymentUpdate{
		Status:           types.PaymentStatusSucceeded,
		GatewayPaymentID: lo.ToPtr("pay_1"),
		Metadata:         map[string]any{"gatewayStatus": "captured"},
	})
	require.NoError(t, err)

	id := "0190a6e4-8d3a-7c4e-9b1f-2a3b4c5d6e7f"
	tx := r.transition(context.Background(), id, types.OpenPaymentStatuses, cols)
	require.NoError(t, tx.Error)

	sql := tx.Statement.SQL.String()
	require.Contains(t, sql, `UPDATE "payment" SET`)
	require.Contains(t, sql, `"metadata"=COALESCE(metadata, '{}'::jsonb) || $`)
	require.Contains(t, sql, `::jsonb`)
	require.Contains(t, sql, `"gateway_payment_id"=$`)
	require.Contains(t, sql, `WHERE (id = $`)
	require.Contains(t, sql, `AND status IN ($`)
	require.Contains(t, sql, `"payment"."deleted_at" IS NULL`)
	require.NotContains(t, sql, `"failure_reason"`)

	vars := tx.Statement.Vars
	require.Contains(t, vars, id)
	require.Contains(t, vars, `{"gatewayStatus":"captured"}`)
	for _, st := range types.OpenPaymentStatuses {
		require.Contains(t, vars, st)
	}
}

func TestTransitionPayment_DryRunChangesNothing(t *testing.T) {
	r := dryRunRepository(t)
	ok, err := r.TransitionPayment(context.Background(), "0190a6e4-8d3a-7c4e-9b1f-2a3b4c5d6e7f",
		[]types.PaymentStatus{types.PaymentStatusProcessing}, models.PaymentUpdate{Status: types.PaymentStatusPending})
	require.NoError(t, err)
	require.False(t, ok)

	_, err = r.TransitionPayment(context.Background(), "id", nil, models.PaymentUpdate{Status: types.PaymentStatusPending})
	require.Error(t, err)
}
