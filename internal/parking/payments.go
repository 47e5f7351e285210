package parking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/smtarpark/internal/model"
)

// PaymentInput は支払い記録の入力。
type PaymentInput struct {
	Plate       string              `validate:"required"`
	Amount      float64             `validate:"gt=0"`
	Method      model.PaymentMethod `validate:"required"`
	Type        model.PaymentType   `validate:"required"`
	ReferenceID string
}

// GCashPaymentInput はGCash支払いの入力。
type GCashPaymentInput struct {
	Plate       string            `validate:"required"`
	Amount      float64           `validate:"gt=0"`
	Type        model.PaymentType `validate:"required"`
	ReferenceID string
}

// CreatePayment は支払いを完了済みとして記録する。
// 違反への支払いで参照IDがある場合、その違反を支払済みにする。
func (s *Service) CreatePayment(ctx context.Context, in PaymentInput) (*model.Payment, error) {
	in.Plate = model.NormalizePlate(in.Plate)
	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewValidationError("Plate, amount, method, and type are required")
	}
	if err := validatePaymentEnums(in.Method, in.Type); err != nil {
		return nil, err
	}

	payment := s.newPayment(in.Plate, in.Amount, in.Method, in.Type, in.ReferenceID)
	if err := s.recordPayment(ctx, payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// CreateGCashPayment はGCash経由の支払いを記録し、GCash参照番号を発行する。
func (s *Service) CreateGCashPayment(ctx context.Context, in GCashPaymentInput) (*model.Payment, error) {
	in.Plate = model.NormalizePlate(in.Plate)
	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewValidationError("Plate, amount, and type are required")
	}
	if err := validatePaymentEnums(model.PaymentMethodGCash, in.Type); err != nil {
		return nil, err
	}

	payment := s.newPayment(in.Plate, in.Amount, model.PaymentMethodGCash, in.Type, in.ReferenceID)
	ref := fmt.Sprintf("GC%d", s.now().UnixMilli())
	payment.GCashReferenceNumber = &ref

	if err := s.recordPayment(ctx, payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListPayments は全支払いを返す。
func (s *Service) ListPayments(ctx context.Context) ([]model.Payment, error) {
	return s.payments.List(ctx)
}

func (s *Service) newPayment(plate string, amount float64, method model.PaymentMethod, ptype model.PaymentType, referenceID string) model.Payment {
	p := model.Payment{
		ID:     s.newID("pay"),
		Plate:  plate,
		Amount: amount,
		Method: method,
		Type:   ptype,
		Date:   s.now().UTC(),
		Status: model.PaymentStatusCompleted,
	}
	if ref := strings.TrimSpace(referenceID); ref != "" {
		p.ReferenceID = &ref
	}
	return p
}

func (s *Service) recordPayment(ctx context.Context, payment model.Payment) error {
	markedPaid := false
	err := s.withLock(ctx, func() error {
		err := s.payments.Mutate(ctx, func(payments []model.Payment) ([]model.Payment, error) {
			return append(payments, payment), nil
		})
		if err != nil {
			return err
		}

		if payment.Type != model.PaymentTypeViolation || payment.ReferenceID == nil {
			return nil
		}
		return s.violations.Mutate(ctx, func(violations []model.Violation) ([]model.Violation, error) {
			idx := findIndex(violations, func(v *model.Violation) bool { return v.ID == *payment.ReferenceID })
			markedPaid = idx >= 0
			if markedPaid {
				violations[idx].Status = model.ViolationStatusPaid
			}
			return violations, nil
		})
	})
	if err != nil {
		return err
	}

	if payment.Type == model.PaymentTypeViolation && payment.ReferenceID != nil && !markedPaid {
		slog.Warn("payment references unknown violation", slog.String("reference_id", *payment.ReferenceID))
	}
	s.recorder.RecordPayment(string(payment.Method), string(payment.Type), payment.Amount)
	slog.Info("payment recorded",
		slog.String("plate", payment.Plate),
		slog.String("method", string(payment.Method)),
		slog.String("type", string(payment.Type)),
		slog.Float64("amount", payment.Amount),
	)
	return nil
}

func validatePaymentEnums(method model.PaymentMethod, ptype model.PaymentType) error {
	switch method {
	case model.PaymentMethodGCash, model.PaymentMethodCash, model.PaymentMethodCard:
	default:
		return model.NewValidationError("Method must be one of GCash, Cash, Card")
	}
	switch ptype {
	case model.PaymentTypeParking, model.PaymentTypeViolation:
	default:
		return model.NewValidationError("Type must be one of parking, violation")
	}
	return nil
}
