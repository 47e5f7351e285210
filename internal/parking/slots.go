package parking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/smtarpark/internal/model"
)

// SeedSlots は zones × perZone 個の空き枠を生成する。IDはゾーン文字と3桁の連番（A001など）。
func SeedSlots(zones []string, perZone int) []model.ParkingSlot {
	slots := make([]model.ParkingSlot, 0, len(zones)*perZone)
	for _, zone := range zones {
		for i := 1; i <= perZone; i++ {
			slots = append(slots, model.ParkingSlot{
				ID:     fmt.Sprintf("%s%03d", zone, i),
				Zone:   zone,
				Status: model.SlotStatusFree,
			})
		}
	}
	return slots
}

// UpdateSlotInput は駐車枠の手動更新の入力。
type UpdateSlotInput struct {
	Status model.SlotStatus `validate:"required,oneof=free occupied pending reserved"`
	Plate  string
}

// ListSlots は全駐車枠を返す。
func (s *Service) ListSlots(ctx context.Context) ([]model.ParkingSlot, error) {
	return s.slots.List(ctx)
}

// ListSlotsByZone は指定ゾーンの駐車枠を返す。該当がない場合は空スライスを返す。
func (s *Service) ListSlotsByZone(ctx context.Context, zone string) ([]model.ParkingSlot, error) {
	zone = strings.ToUpper(strings.TrimSpace(zone))
	slots, err := s.slots.List(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]model.ParkingSlot, 0, len(slots))
	for _, sl := range slots {
		if sl.Zone == zone {
			filtered = append(filtered, sl)
		}
	}
	return filtered, nil
}

// UpdateSlot は駐車枠の状態を上書きする。入庫時刻はoccupiedの場合のみ設定する。
func (s *Service) UpdateSlot(ctx context.Context, slotID string, in UpdateSlotInput) (*model.ParkingSlot, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewValidationError("Status must be one of free, occupied, pending, reserved")
	}
	plate := model.NormalizePlate(in.Plate)

	var updated model.ParkingSlot
	err := s.withLock(ctx, func() error {
		return s.slots.Mutate(ctx, func(slots []model.ParkingSlot) ([]model.ParkingSlot, error) {
			idx := findIndex(slots, func(sl *model.ParkingSlot) bool { return sl.ID == slotID })
			if idx < 0 {
				return nil, model.NewSlotNotFoundError(slotID)
			}

			sl := &slots[idx]
			sl.Status = in.Status
			sl.Plate = nil
			sl.EntryTime = nil
			if plate != "" {
				sl.Plate = &plate
			}
			if in.Status == model.SlotStatusOccupied {
				now := s.now().UTC()
				sl.EntryTime = &now
			}
			updated = *sl
			return slots, nil
		})
	})
	if err != nil {
		return nil, err
	}

	slog.Info("slot updated", slog.String("slot_id", slotID), slog.String("status", string(in.Status)))
	return &updated, nil
}
