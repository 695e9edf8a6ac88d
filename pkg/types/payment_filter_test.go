package types

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/clause"
)

type sqlRecorder struct {
	strings.Builder
	vars []any
}

func (r *sqlRecorder) WriteQuoted(field any) { fmt.Fprintf(r, "%q", fmt.Sprint(field)) }

func (r *sqlRecorder) AddVar(w clause.Writer, vars ...any) {
	for i, v := range vars {
		if i > 0 {
			_ = w.WriteByte(',')
		}
		_, _ = w.WriteString("?")
		r.vars = append(r.vars, v)
	}
}

func (r *sqlRecorder) AddError(err error) error { return err }

func build(f PaymentFilter) (string, []any) {
	r := &sqlRecorder{}
	f.Build(r)
	return r.String(), r.vars
}

func TestPaymentFilter_Validate(t *testing.T) {
	cases := []struct {
		name string
		f    PaymentFilter
		ok   bool
	}{
		{"column eq", PaymentFilter{Field: "status", Operator: FilterOperatorEq, Values: []any{"failed"}}, true},
		{"metadata key", PaymentFilter{Field: "metadata.gatewayStatus", Operator: FilterOperatorEq, Values: []any{"created"}}, true},
		{"range", PaymentFilter{Field: "amount", Operator: FilterOperatorRange, Values: []any{1, 10}}, true},
		{"in", PaymentFilter{Field: "provider", Operator: FilterOperatorIn, Values: []any{"razorpay", "stripe"}}, true},
		{"unknown column", PaymentFilter{Field: "password", Operator: FilterOperatorEq, Values: []any{"x"}}, false},
		{"injected column", PaymentFilter{Field: "status; drop table payments", Operator: FilterOperatorEq, Values: []any{"x"}}, false},
		{"injected metadata key", PaymentFilter{Field: "metadata.a' or '1'='1", Operator: FilterOperatorEq, Values: []any{"x"}}, false},
		{"unknown operator", PaymentFilter{Field: "status", Operator: "like", Values: []any{"x"}}, false},
		{"range one value", PaymentFilter{Field: "amount", Operator: FilterOperatorRange, Values: []any{1}}, false},
		{"in empty", PaymentFilter{Field: "status", Operator: FilterOperatorIn}, false},
		{"eq two values", PaymentFilter{Field: "status", Operator: FilterOperatorEq, Values: []any{"a", "b"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.f.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestPaymentFilter_BuildColumns(t *testing.T) {
	sql, vars := build(PaymentFilter{Field: "status", Operator: FilterOperatorEq, Values: []any{"failed"}})
	assert.Equal(t, `"status" = ?`, sql)
	assert.Equal(t, []any{"failed"}, vars)

	sql, vars = build(PaymentFilter{Field: "status", Operator: FilterOperatorNotEq, Values: []any{"failed"}})
	assert.Equal(t, `"status" <> ?`, sql)
	assert.Equal(t, []any{"failed"}, vars)

	sql, vars = build(PaymentFilter{Field: "amount", Operator: FilterOperatorRange, Values: []any{10, 20}})
	assert.Equal(t, `("amount" >= ? AND "amount" <= ?)`, sql)
	assert.Equal(t, []any{10, 20}, vars)

	sql, vars = build(PaymentFilter{Field: "provider", Operator: FilterOperatorIn, Values: []any{"razorpay", "stripe"}})
	assert.Equal(t, `"provider" IN (?,?)`, sql)
	assert.Equal(t, []any{"razorpay", "stripe"}, vars)
}

func TestPaymentFilter_BuildMetadata(t *testing.T) {
	sql, vars := build(PaymentFilter{Field: "metadata.gatewayStatus", Operator: FilterOperatorEq, Values: []any{"created"}})
	assert.Equal(t, `metadata->>'gatewayStatus' = ?`, sql)
	assert.Equal(t, []any{"created"}, vars)

	sql, vars = build(PaymentFilter{Field: "metadata.attempt", Operator: FilterOperatorGte, Values: []any{3}})
	assert.Equal(t, `metadata->>'attempt' >= ?`, sql)
	assert.Equal(t, []any{"3"}, vars)

	sql, vars = build(PaymentFilter{Field: "metadata.source", Operator: FilterOperatorIn, Values: []any{"api", "order_event"}})
	assert.Equal(t, `metadata->>'source' IN (?,?)`, sql)
	assert.Equal(t, []any{"api", "order_event"}, vars)
}

func TestPaymentFilter_BuildWithoutValuesWritesNothing(t *testing.T) {
	sql, vars := build(PaymentFilter{Field: "status", Operator: FilterOperatorEq})
	assert.Empty(t, sql)
	assert.Empty(t, vars)
}
