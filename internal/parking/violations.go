package parking

import (
	"context"
	"log/slog"

	"github.com/hitoshi/smtarpark/internal/model"
)

// CreditPenalty は違反1件あたりの信用スコア減点。
const CreditPenalty = 10

// ViolationInput は違反記録の入力。
type ViolationInput struct {
	Plate    string  `validate:"required"`
	Type     string  `validate:"required"`
	Fine     float64 `validate:"gt=0"`
	PhotoURL string
}

// UpdateViolationInput は違反状態の更新の入力。
type UpdateViolationInput struct {
	Status model.ViolationStatus `validate:"required,oneof=unpaid pending paid"`
}

// CreateViolation は未払いの違反を記録する。
// 該当ナンバーの車両があれば違反回数を加算し、信用スコアを0を下限として減点する。
// スコアが既に負(blocked)の場合は減点しない。
func (s *Service) CreateViolation(ctx context.Context, in ViolationInput) (*model.Violation, error) {
	in.Plate = model.NormalizePlate(in.Plate)
	in.Type = s.sanitizer.SanitizeText(in.Type)
	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewValidationError("Plate, type, and fine are required")
	}

	violation := model.Violation{
		ID:     s.newID("vio"),
		Plate:  in.Plate,
		Type:   in.Type,
		Fine:   in.Fine,
		Date:   s.now().UTC(),
		Status: model.ViolationStatusUnpaid,
	}
	if u := s.sanitizer.SanitizeURL(in.PhotoURL); u != "" {
		violation.PhotoURL = &u
	}

	vehicleFound := false
	err := s.withLock(ctx, func() error {
		err := s.violations.Mutate(ctx, func(violations []model.Violation) ([]model.Violation, error) {
			return append(violations, violation), nil
		})
		if err != nil {
			return err
		}

		return s.vehicles.Mutate(ctx, func(vehicles []model.Vehicle) ([]model.Vehicle, error) {
			idx := findIndex(vehicles, func(v *model.Vehicle) bool { return v.Plate == in.Plate })
			vehicleFound = idx >= 0
			if !vehicleFound {
				return vehicles, nil
			}
			v := &vehicles[idx]
			v.Violations++
			if v.CreditScore >= 0 {
				v.CreditScore = max(0, v.CreditScore-CreditPenalty)
			}
			return vehicles, nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.recorder.RecordViolation()
	slog.Info("violation recorded",
		slog.String("plate", violation.Plate),
		slog.String("type", violation.Type),
		slog.Bool("vehicle_found", vehicleFound),
	)
	return &violation, nil
}

// UpdateViolationStatus は違反の支払い状態を上書きする。状態遷移の制約はない。
func (s *Service) UpdateViolationStatus(ctx context.Context, violationID string, in UpdateViolationInput) (*model.Violation, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewValidationError("Status must be one of unpaid, pending, paid")
	}

	var updated model.Violation
	err := s.withLock(ctx, func() error {
		return s.violations.Mutate(ctx, func(violations []model.Violation) ([]model.Violation, error) {
			idx := findIndex(violations, func(v *model.Violation) bool { return v.ID == violationID })
			if idx < 0 {
				return nil, model.NewViolationNotFoundError()
			}
			violations[idx].Status = in.Status
			updated = violations[idx]
			return violations, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListViolations は全違反を返す。
func (s *Service) ListViolations(ctx context.Context) ([]model.Violation, error) {
	return s.violations.List(ctx)
}
