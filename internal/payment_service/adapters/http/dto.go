package http

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

// PaymentRequestDTO is the body of POST /api/mobile-wallet/payment.
type PaymentRequestDTO struct {
	Provider            string          `json:"provider" validate:"omitempty,oneof=mtn airtel zamtel"`
	PhoneNumber         string          `json:"phone_number" validate:"required,max=20"`
	Amount              decimal.Decimal `json:"amount" validate:"required,gte=1"`
	Reference           string          `json:"reference" validate:"omitempty,max=255"`
	Narration           string          `json:"narration" validate:"omitempty,max=255"`
	TransactionableType string          `json:"transactionable_type" validate:"omitempty,max=255"`
	TransactionableID   string          `json:"transactionable_id" validate:"omitempty,max=255"`
}

func (d *PaymentRequestDTO) normalize() {
	d.Provider = strings.ToLower(strings.TrimSpace(d.Provider))
	d.PhoneNumber = strings.TrimSpace(d.PhoneNumber)
}

func (d PaymentRequestDTO) toDomain() domain.PaymentRequest {
	return domain.PaymentRequest{
		PhoneNumber:         d.PhoneNumber,
		Amount:              d.Amount,
		Reference:           d.Reference,
		Narration:           d.Narration,
		TransactionableType: d.TransactionableType,
		TransactionableID:   d.TransactionableID,
	}
}

// UpdateStatusDTO is the body of PUT /admin/mobile-wallet/transactions/{id}.
type UpdateStatusDTO struct {
	Status  string  `json:"status" validate:"required,oneof=pending paid failed"`
	Message *string `json:"message" validate:"omitempty,max=1000"`
}

// NewValidator returns a validator that reports json field names and
// compares decimal amounts numerically.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// validationErrors groups validator failures by field, the shape API
// clients already parse.
func validationErrors(err error) map[string][]string {
	out := map[string][]string{}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out["request"] = []string{err.Error()}
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = append(out[fe.Field()], fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "The " + fe.Field() + " field is required."
	case "oneof":
		return "The selected " + fe.Field() + " is invalid."
	case "gte":
		return "The " + fe.Field() + " must be at least " + fe.Param() + "."
	case "max":
		return "The " + fe.Field() + " may not be greater than " + fe.Param() + " characters."
	default:
		return "The " + fe.Field() + " is invalid."
	}
}
