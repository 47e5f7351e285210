package parking

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hitoshi/smtarpark/internal/model"
)

// EntryInput は入庫記録の入力。
type EntryInput struct {
	Plate  string `validate:"required"`
	Owner  string
	SlotID string `validate:"required"`
}

// ExitResult は出庫記録の結果。
type ExitResult struct {
	Vehicle model.Vehicle
	Fee     int
}

// CalculateFee は駐車時間から料金を計算する。
// 1時間未満の端数は切り上げ、最低1時間分を課金する。
func CalculateFee(d time.Duration, hourlyRate int) (hours, fee int) {
	hours = int(math.Ceil(d.Hours()))
	if hours < 1 {
		hours = 1
	}
	return hours, hours * hourlyRate
}

// RecordEntry は車両の入庫を記録する。
// 未登録のナンバーは新規車両として作成し、登録済みの場合は駐車中に戻して入庫回数を加算する。
// 指定の枠は空き状況を検証せずに占有状態にする。同じ車両が別の枠に駐車中だった場合、その枠は解放する。
func (s *Service) RecordEntry(ctx context.Context, in EntryInput) (*model.Vehicle, error) {
	in.Plate = model.NormalizePlate(in.Plate)
	in.SlotID = strings.ToUpper(strings.TrimSpace(in.SlotID))
	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewValidationError("Plate and slotId are required")
	}

	owner := s.sanitizer.SanitizeText(in.Owner)
	if owner == "" {
		owner = "Unknown"
	}

	var result model.Vehicle
	err := s.withLock(ctx, func() error {
		slots, err := s.slots.List(ctx)
		if err != nil {
			return err
		}
		if findIndex(slots, func(sl *model.ParkingSlot) bool { return sl.ID == in.SlotID }) < 0 {
			return model.NewSlotNotFoundError(in.SlotID)
		}

		now := s.now().UTC()
		var previousSlot string

		err = s.vehicles.Mutate(ctx, func(vehicles []model.Vehicle) ([]model.Vehicle, error) {
			previousSlot = ""
			idx := findIndex(vehicles, func(v *model.Vehicle) bool { return v.Plate == in.Plate })
			if idx < 0 {
				slotID := in.SlotID
				vehicles = append(vehicles, model.Vehicle{
					ID:          s.newID("v"),
					Plate:       in.Plate,
					Owner:       owner,
					CreditScore: model.InitialCreditScore,
					Entries:     1,
					Violations:  0,
					Status:      model.VehicleStatusParked,
					SlotNumber:  &slotID,
					EntryTime:   &now,
				})
				result = vehicles[len(vehicles)-1]
				return vehicles, nil
			}

			v := &vehicles[idx]
			if v.Status == model.VehicleStatusParked && v.SlotNumber != nil && *v.SlotNumber != in.SlotID {
				previousSlot = *v.SlotNumber
			}
			slotID := in.SlotID
			v.Status = model.VehicleStatusParked
			v.EntryTime = &now
			v.SlotNumber = &slotID
			v.Entries++
			v.ExitTime = nil
			v.Duration = nil
			v.Fee = nil
			if in.Owner != "" {
				v.Owner = owner
			}
			result = *v
			return vehicles, nil
		})
		if err != nil {
			return err
		}

		return s.slots.Mutate(ctx, func(slots []model.ParkingSlot) ([]model.ParkingSlot, error) {
			for i := range slots {
				sl := &slots[i]
				switch sl.ID {
				case in.SlotID:
					if sl.Status == model.SlotStatusOccupied && sl.Plate != nil && *sl.Plate != in.Plate {
						slog.Warn("entry overwrites occupied slot",
							slog.String("slot_id", sl.ID),
							slog.String("previous_plate", *sl.Plate),
							slog.String("plate", in.Plate),
						)
					}
					sl.Occupy(in.Plate, now)
				case previousSlot:
					if sl.Plate != nil && *sl.Plate == in.Plate {
						sl.Release()
					}
				}
			}
			return slots, nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.recorder.RecordVehicleEntry()
	slog.Info("vehicle entered",
		slog.String("plate", result.Plate),
		slog.String("slot_id", in.SlotID),
		slog.Int("entries", result.Entries),
	)
	view := result.View()
	return &view, nil
}

// RecordExit は車両の出庫を記録し、料金を計算して枠を解放する。
func (s *Service) RecordExit(ctx context.Context, vehicleID string) (*ExitResult, error) {
	var result ExitResult
	err := s.withLock(ctx, func() error {
		now := s.now().UTC()
		var slotID string

		err := s.vehicles.Mutate(ctx, func(vehicles []model.Vehicle) ([]model.Vehicle, error) {
			idx := findIndex(vehicles, func(v *model.Vehicle) bool { return v.ID == vehicleID })
			if idx < 0 {
				return nil, model.NewVehicleNotFoundError()
			}
			v := &vehicles[idx]
			if v.Status != model.VehicleStatusParked || v.EntryTime == nil {
				return nil, model.NewVehicleNotParkedError()
			}

			hours, fee := CalculateFee(now.Sub(*v.EntryTime), s.config.HourlyRate)
			duration := fmt.Sprintf("%dh", hours)
			v.Status = model.VehicleStatusExited
			v.ExitTime = &now
			v.Duration = &duration
			v.Fee = &fee
			if v.SlotNumber != nil {
				slotID = *v.SlotNumber
			}

			result = ExitResult{Vehicle: *v, Fee: fee}
			return vehicles, nil
		})
		if err != nil {
			return err
		}
		return s.releaseSlot(ctx, slotID, result.Vehicle.Plate)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.RecordVehicleExit(result.Fee)
	slog.Info("vehicle exited",
		slog.String("plate", result.Vehicle.Plate),
		slog.String("duration", *result.Vehicle.Duration),
		slog.Int("fee", result.Fee),
	)
	result.Vehicle = result.Vehicle.View()
	return &result, nil
}

// DeleteVehicle は車両を削除する。駐車中の場合は枠も解放する。
func (s *Service) DeleteVehicle(ctx context.Context, vehicleID string) (*model.Vehicle, error) {
	var removed model.Vehicle
	err := s.withLock(ctx, func() error {
		err := s.vehicles.Mutate(ctx, func(vehicles []model.Vehicle) ([]model.Vehicle, error) {
			idx := findIndex(vehicles, func(v *model.Vehicle) bool { return v.ID == vehicleID })
			if idx < 0 {
				return nil, model.NewVehicleNotFoundError()
			}
			removed = vehicles[idx]
			return append(vehicles[:idx], vehicles[idx+1:]...), nil
		})
		if err != nil {
			return err
		}

		if removed.Status == model.VehicleStatusParked && removed.SlotNumber != nil {
			return s.releaseSlot(ctx, *removed.SlotNumber, removed.Plate)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("vehicle deleted", slog.String("plate", removed.Plate))
	view := removed.View()
	return &view, nil
}

// UpdateCreditScore は信用スコアを上書きする。負の値も受け付け、その車両はblocked扱いになる。
func (s *Service) UpdateCreditScore(ctx context.Context, vehicleID string, score int) (*model.Vehicle, error) {
	var updated model.Vehicle
	err := s.withLock(ctx, func() error {
		return s.vehicles.Mutate(ctx, func(vehicles []model.Vehicle) ([]model.Vehicle, error) {
			idx := findIndex(vehicles, func(v *model.Vehicle) bool { return v.ID == vehicleID })
			if idx < 0 {
				return nil, model.NewVehicleNotFoundError()
			}
			vehicles[idx].CreditScore = score
			updated = vehicles[idx]
			return vehicles, nil
		})
	})
	if err != nil {
		return nil, err
	}

	slog.Info("credit score updated",
		slog.String("plate", updated.Plate),
		slog.Int("credit_score", score),
	)
	view := updated.View()
	return &view, nil
}

// ListVehicles は全車両を返す。
func (s *Service) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	vehicles, err := s.vehicles.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range vehicles {
		vehicles[i] = vehicles[i].View()
	}
	return vehicles, nil
}

// GetVehicle はIDで車両を取得する。
func (s *Service) GetVehicle(ctx context.Context, vehicleID string) (*model.Vehicle, error) {
	return s.findVehicle(ctx, func(v *model.Vehicle) bool { return v.ID == vehicleID })
}

// GetVehicleByPlate はナンバーで車両を取得する。大文字小文字と前後の空白は区別しない。
func (s *Service) GetVehicleByPlate(ctx context.Context, plate string) (*model.Vehicle, error) {
	plate = model.NormalizePlate(plate)
	return s.findVehicle(ctx, func(v *model.Vehicle) bool { return v.Plate == plate })
}

func (s *Service) findVehicle(ctx context.Context, pred func(*model.Vehicle) bool) (*model.Vehicle, error) {
	vehicles, err := s.vehicles.List(ctx)
	if err != nil {
		return nil, err
	}
	idx := findIndex(vehicles, pred)
	if idx < 0 {
		return nil, model.NewVehicleNotFoundError()
	}
	view := vehicles[idx].View()
	return &view, nil
}

// releaseSlot は指定の枠を空きに戻す。slotIDが空または存在しない場合は何もしない。
// 枠が別のナンバーに上書きされている場合はその車両の占有を保つ。
func (s *Service) releaseSlot(ctx context.Context, slotID, plate string) error {
	if slotID == "" {
		return nil
	}
	return s.slots.Mutate(ctx, func(slots []model.ParkingSlot) ([]model.ParkingSlot, error) {
		idx := findIndex(slots, func(sl *model.ParkingSlot) bool { return sl.ID == slotID })
		if idx < 0 {
			return slots, nil
		}
		if p := slots[idx].Plate; p != nil && *p != plate {
			slog.Warn("slot held by another plate, keeping it occupied",
				slog.String("slot_id", slotID),
				slog.String("plate", plate),
				slog.String("current_plate", *p),
			)
			return slots, nil
		}
		slots[idx].Release()
		return slots, nil
	})
}
