package model

import (
	"strings"
	"time"
)

// SlotStatus は駐車枠の状態を表す。
type SlotStatus string

const (
	SlotStatusFree     SlotStatus = "free"
	SlotStatusOccupied SlotStatus = "occupied"
	SlotStatusPending  SlotStatus = "pending"
	SlotStatusReserved SlotStatus = "reserved"
)

// VehicleStatus は車両の状態を表す。
type VehicleStatus string

const (
	VehicleStatusParked  VehicleStatus = "parked"
	VehicleStatusExited  VehicleStatus = "exited"
	VehicleStatusBlocked VehicleStatus = "blocked"
)

// ViolationStatus は違反の支払い状態を表す。
type ViolationStatus string

const (
	ViolationStatusUnpaid  ViolationStatus = "unpaid"
	ViolationStatusPending ViolationStatus = "pending"
	ViolationStatusPaid    ViolationStatus = "paid"
)

// PaymentMethod は支払い手段を表す。
type PaymentMethod string

const (
	PaymentMethodGCash PaymentMethod = "GCash"
	PaymentMethodCash  PaymentMethod = "Cash"
	PaymentMethodCard  PaymentMethod = "Card"
)

// PaymentType は支払い対象の種別を表す。
type PaymentType string

const (
	PaymentTypeParking   PaymentType = "parking"
	PaymentTypeViolation PaymentType = "violation"
)

// PaymentStatusCompleted は記録済み支払いの状態。支払いは常に完了として記録される。
const PaymentStatusCompleted = "completed"

// InitialCreditScore は新規車両の信用スコア。
const InitialCreditScore = 100

// ParkingSlot は駐車枠を表す。
// 枠の集合は初期化時に固定され、以後は状態のみが変化する。
type ParkingSlot struct {
	ID        string     `json:"id"`
	Zone      string     `json:"zone"`
	Status    SlotStatus `json:"status"`
	Plate     *string    `json:"plate"`
	EntryTime *time.Time `json:"entryTime"`
}

// Occupy は枠を指定ナンバーで占有状態にする。
func (s *ParkingSlot) Occupy(plate string, at time.Time) {
	s.Status = SlotStatusOccupied
	s.Plate = &plate
	s.EntryTime = &at
}

// Release は枠を空き状態に戻す。
func (s *ParkingSlot) Release() {
	s.Status = SlotStatusFree
	s.Plate = nil
	s.EntryTime = nil
}

// Vehicle は入庫実績のある車両を表す。ナンバーが自然キー。
type Vehicle struct {
	ID          string        `json:"id"`
	Plate       string        `json:"plate"`
	Owner       string        `json:"owner"`
	CreditScore int           `json:"creditScore"`
	Entries     int           `json:"entries"`
	Violations  int           `json:"violations"`
	Status      VehicleStatus `json:"status"`
	SlotNumber  *string       `json:"slotNumber,omitempty"`
	EntryTime   *time.Time    `json:"entryTime,omitempty"`
	ExitTime    *time.Time    `json:"exitTime,omitempty"`
	Duration    *string       `json:"duration,omitempty"`
	Fee         *int          `json:"fee,omitempty"`

	// Blocked は応答時にのみ設定する派生値。保存しない。
	Blocked bool `json:"blocked,omitempty"`
}

// IsBlocked は信用スコアが負の車両かどうかを返す。
func (v *Vehicle) IsBlocked() bool {
	return v.CreditScore < 0
}

// View は応答用の表現を返す。
// 信用スコアが負の車両はblockedを立て、駐車中でなければstatusもblockedとして返す。
func (v Vehicle) View() Vehicle {
	v.Blocked = v.IsBlocked()
	if v.Blocked && v.Status != VehicleStatusParked {
		v.Status = VehicleStatusBlocked
	}
	return v
}

// Violation は駐車違反の記録を表す。
type Violation struct {
	ID       string          `json:"id"`
	Plate    string          `json:"plate"`
	Type     string          `json:"type"`
	Fine     float64         `json:"fine"`
	PhotoURL *string         `json:"photoUrl"`
	Date     time.Time       `json:"date"`
	Status   ViolationStatus `json:"status"`
}

// Payment は支払いの記録を表す。追記のみ。
type Payment struct {
	ID                   string        `json:"id"`
	Plate                string        `json:"plate"`
	Amount               float64       `json:"amount"`
	Method               PaymentMethod `json:"method"`
	Type                 PaymentType   `json:"type"`
	ReferenceID          *string       `json:"referenceId"`
	GCashReferenceNumber *string       `json:"gcashReferenceNumber,omitempty"`
	Date                 time.Time     `json:"date"`
	Status               string        `json:"status"`
}

// NormalizePlate はナンバーを比較用の正規形（前後空白除去・大文字）に変換する。
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}
