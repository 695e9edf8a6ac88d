package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm/clause"
)

type FilterOperator string

const (
	FilterOperatorEq    FilterOperator = "eq"
	FilterOperatorNotEq FilterOperator = "not_eq"
	FilterOperatorLt    FilterOperator = "lt"
	FilterOperatorLte   FilterOperator = "lte"
	FilterOperatorGt    FilterOperator = "gt"
	FilterOperatorGte   FilterOperator = "gte"
	FilterOperatorRange FilterOperator = "range"
	FilterOperatorIn    FilterOperator = "in"
)

var ErrInvalidFilter = errors.New("invalid filter")

// MetadataFieldPrefix addresses a top-level key of the payment metadata, e.g. "metadata.gatewayStatus".
const MetadataFieldPrefix = "metadata."

var filterablePaymentColumns = map[string]bool{
	"id":                 true,
	"order_id":           true,
	"user_id":            true,
	"status":             true,
	"provider":           true,
	"currency":           true,
	"amount":             true,
	"gateway_order_id":   true,
	"gateway_payment_id": true,
	"failure_reason":     true,
	"created_at":         true,
	"updated_at":         true,
}

var metadataKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

var comparisonSQL = map[FilterOperator]string{
	FilterOperatorEq:    "=",
	FilterOperatorNotEq: "<>",
	FilterOperatorLt:    "<",
	FilterOperatorLte:   "<=",
	FilterOperatorGt:    ">",
	FilterOperatorGte:   ">=",
}

// PaymentFilter is one condition of a payment search.
type PaymentFilter struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator" enums:"eq,not_eq,lt,lte,gt,gte,range,in"`
	Values   []any          `json:"values"`
}

// Validate rejects unknown fields and operators and checks the value count.
// Build must only be called on a validated filter.
func (f *PaymentFilter) Validate() error {
	if key, ok := strings.CutPrefix(f.Field, MetadataFieldPrefix); ok {
		if !metadataKeyPattern.MatchString(key) {
			return fmt.Errorf("%w: metadata key %q", ErrInvalidFilter, key)
		}
	} else if !filterablePaymentColumns[f.Field] {
		return fmt.Errorf("%w: field %q", ErrInvalidFilter, f.Field)
	}

	switch f.Operator {
	case FilterOperatorRange:
		if len(f.Values) != 2 {
			return fmt.Errorf("%w: range needs 2 values, got %d", ErrInvalidFilter, len(f.Values))
		}
	case FilterOperatorIn:
		if len(f.Values) == 0 {
			return fmt.Errorf("%w: in needs at least 1 value", ErrInvalidFilter)
		}
	default:
		if _, ok := comparisonSQL[f.Operator]; !ok {
			return fmt.Errorf("%w: operator %q", ErrInvalidFilter, f.Operator)
		}
		if len(f.Values) != 1 {
			return fmt.Errorf("%w: %s needs 1 value, got %d", ErrInvalidFilter, f.Operator, len(f.Values))
		}
	}
	return nil
}

// Build constructs a GORM expression.
func (f *PaymentFilter) Build(builder clause.Builder) {
	if len(f.Values) == 0 {
		return
	}
	if key, ok := strings.CutPrefix(f.Field, MetadataFieldPrefix); ok {
		f.buildMetadata(builder, key)
		return
	}

	value := f.Values[0]
	switch f.Operator {
	case FilterOperatorEq:
		clause.Eq{Column: f.Field, Value: value}.Build(builder)
	case FilterOperatorNotEq:
		clause.Neq{Column: f.Field, Value: value}.Build(builder)
	case FilterOperatorLt:
		clause.Lt{Column: f.Field, Value: value}.Build(builder)
	case FilterOperatorLte:
		clause.Lte{Column: f.Field, Value: value}.Build(builder)
	case FilterOperatorGt:
		clause.Gt{Column: f.Field, Value: value}.Build(builder)
	case FilterOperatorGte:
		clause.Gte{Column: f.Field, Value: value}.Build(builder)
	case FilterOperatorRange:
		if len(f.Values) < 2 {
			return
		}
		clause.And(clause.Gte{Column: f.Field, Value: f.Values[0]}, clause.Lte{Column: f.Field, Value: f.Values[1]}).Build(builder)
	case FilterOperatorIn:
		clause.IN{Column: f.Field, Values: f.Values}.Build(builder)
	}
}

// metadata values compare as text; the key is inlined after Validate has checked it.
func (f *PaymentFilter) buildMetadata(builder clause.Builder, key string) {
	path := fmt.Sprintf("metadata->>'%s'", key)
	switch f.Operator {
	case FilterOperatorRange:
		if len(f.Values) < 2 {
			return
		}
		clause.Expr{SQL: path + " BETWEEN ? AND ?", Vars: []any{text(f.Values[0]), text(f.Values[1])}}.Build(builder)
	case FilterOperatorIn:
		clause.Expr{SQL: path + " IN (?)", Vars: []any{texts(f.Values)}}.Build(builder)
	default:
		op, ok := comparisonSQL[f.Operator]
		if !ok {
			return
		}
		clause.Expr{SQL: fmt.Sprintf("%s %s ?", path, op), Vars: []any{text(f.Values[0])}}.Build(builder)
	}
}

func text(v any) string { return fmt.Sprint(v) }

func texts(vs []any) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = text(v)
	}
	return out
}
