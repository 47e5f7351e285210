package parking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/smtarpark/internal/kv"
	"github.com/hitoshi/smtarpark/internal/model"
	"github.com/hitoshi/smtarpark/internal/repository"
	"github.com/hitoshi/smtarpark/internal/security"
)

// --- テストヘルパー ---

type recordingRecorder struct {
	mu         sync.Mutex
	entries    int
	exits      []int
	violations int
	payments   []string
}

func (r *recordingRecorder) RecordVehicleEntry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries++
}

func (r *recordingRecorder) RecordVehicleExit(fee int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, fee)
}

func (r *recordingRecorder) RecordViolation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations++
}

func (r *recordingRecorder) RecordPayment(method, paymentType string, amount float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, method+"/"+paymentType)
}

type fixture struct {
	svc      *Service
	repos    Repositories
	recorder *recordingRecorder
	now      time.Time
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// newFixture は6ゾーン×100枠を投入したインメモリKV上のServiceを生成する。
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := kv.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	repos := Repositories{
		Slots:      repository.NewSlotRepo(store),
		Vehicles:   repository.NewVehicleRepo(store),
		Violations: repository.NewViolationRepo(store),
		Payments:   repository.NewPaymentRepo(store),
	}
	ctx := context.Background()
	if _, err := repos.Slots.Ensure(ctx, SeedSlots([]string{"A", "B", "C", "D", "E", "F"}, 100)); err != nil {
		t.Fatalf("failed to seed slots: %v", err)
	}

	f := &fixture{
		repos:    repos,
		recorder: &recordingRecorder{},
		now:      time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(repos, security.NewTextSanitizer(), f.recorder, Config{})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func findSlot(t *testing.T, f *fixture, id string) model.ParkingSlot {
	t.Helper()
	slots, err := f.svc.ListSlots(context.Background())
	if err != nil {
		t.Fatalf("ListSlots failed: %v", err)
	}
	for _, sl := range slots {
		if sl.ID == id {
			return sl
		}
	}
	t.Fatalf("slot %s not found", id)
	return model.ParkingSlot{}
}

func assertAPIError(t *testing.T, err error, code string, status int) *model.APIError {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError %s", err, code)
	}
	if apiErr.Code != code || apiErr.HTTPStatus() != status {
		t.Fatalf("err = %s/%d, want %s/%d", apiErr.Code, apiErr.HTTPStatus(), code, status)
	}
	return apiErr
}

// --- テスト ---

func TestSeedSlots(t *testing.T) {
	slots := SeedSlots([]string{"A", "B", "C", "D", "E", "F"}, 100)
	if len(slots) != 600 {
		t.Fatalf("len = %d, want 600", len(slots))
	}
	if slots[0].ID != "A001" || slots[99].ID != "A100" || slots[599].ID != "F100" {
		t.Errorf("ids = %s, %s, %s", slots[0].ID, slots[99].ID, slots[599].ID)
	}
	for _, sl := range slots {
		if sl.Status != model.SlotStatusFree || sl.Plate != nil || sl.EntryTime != nil {
			t.Fatalf("slot %s not free: %+v", sl.ID, sl)
		}
	}
}

func TestCalculateFee(t *testing.T) {
	tests := []struct {
		d         time.Duration
		wantHours int
		wantFee   int
	}{
		{0, 1, 25},
		{time.Second, 1, 25},
		{59 * time.Minute, 1, 25},
		{time.Hour, 1, 25},
		{time.Hour + time.Second, 2, 50},
		{90 * time.Minute, 2, 50},
		{5 * time.Hour, 5, 125},
		{-time.Minute, 1, 25},
	}
	for _, tt := range tests {
		hours, fee := CalculateFee(tt.d, DefaultHourlyRate)
		if hours != tt.wantHours || fee != tt.wantFee {
			t.Errorf("CalculateFee(%v) = %d, %d; want %d, %d", tt.d, hours, fee, tt.wantHours, tt.wantFee)
		}
	}
}

func TestEntryThenExit_NinetyMinutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.svc.RecordEntry(ctx, EntryInput{Plate: "abc123", SlotID: "A001"})
	if err != nil {
		t.Fatalf("RecordEntry failed: %v", err)
	}
	if v.Plate != "ABC123" || v.CreditScore != 100 || v.Entries != 1 || v.Violations != 0 {
		t.Errorf("vehicle = %+v", v)
	}
	if v.Owner != "Unknown" || v.Status != model.VehicleStatusParked {
		t.Errorf("owner/status = %q/%q", v.Owner, v.Status)
	}

	slot := findSlot(t, f, "A001")
	if slot.Status != model.SlotStatusOccupied || slot.Plate == nil || *slot.Plate != "ABC123" {
		t.Errorf("slot after entry = %+v", slot)
	}
	if slot.EntryTime == nil || !slot.EntryTime.Equal(f.now) {
		t.Errorf("slot entryTime = %v, want %v", slot.EntryTime, f.now)
	}

	f.advance(90 * time.Minute)
	res, err := f.svc.RecordExit(ctx, v.ID)
	if err != nil {
		t.Fatalf("RecordExit failed: %v", err)
	}
	if res.Fee != 50 {
		t.Errorf("fee = %d, want 50", res.Fee)
	}
	if res.Vehicle.Status != model.VehicleStatusExited || *res.Vehicle.Duration != "2h" || *res.Vehicle.Fee != 50 {
		t.Errorf("vehicle after exit = %+v", res.Vehicle)
	}

	slot = findSlot(t, f, "A001")
	if slot.Status != model.SlotStatusFree || slot.Plate != nil || slot.EntryTime != nil {
		t.Errorf("slot after exit = %+v", slot)
	}

	if f.recorder.entries != 1 || len(f.recorder.exits) != 1 || f.recorder.exits[0] != 50 {
		t.Errorf("recorder = %+v", f.recorder)
	}
}

func TestEntry_ReentryUpdatesExistingVehicle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _ := f.svc.RecordEntry(ctx, EntryInput{Plate: "XYZ789", Owner: "Ana", SlotID: "B010"})
	f.advance(time.Hour)
	f.svc.RecordExit(ctx, first.ID)

	f.advance(time.Hour)
	again, err := f.svc.RecordEntry(ctx, EntryInput{Plate: " xyz789 ", SlotID: "c005"})
	if err != nil {
		t.Fatalf("RecordEntry failed: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("id = %q, want existing %q", again.ID, first.ID)
	}
	if again.Entries != 2 || again.Owner != "Ana" || *again.SlotNumber != "C005" {
		t.Errorf("vehicle = %+v", again)
	}
	if again.ExitTime != nil || again.Fee != nil {
		t.Error("expected previous exit details to be cleared on re-entry")
	}

	vehicles, _ := f.svc.ListVehicles(ctx)
	if len(vehicles) != 1 {
		t.Errorf("len(vehicles) = %d, want 1", len(vehicles))
	}
}

func TestEntry_MovingSlotsFreesPreviousSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.RecordEntry(ctx, EntryInput{Plate: "MOV001", SlotID: "A001"})
	if _, err := f.svc.RecordEntry(ctx, EntryInput{Plate: "MOV001", SlotID: "A002"}); err != nil {
		t.Fatalf("RecordEntry failed: %v", err)
	}

	if s := findSlot(t, f, "A001"); s.Status != model.SlotStatusFree {
		t.Errorf("A001 status = %q, want free", s.Status)
	}
	if s := findSlot(t, f, "A002"); s.Status != model.SlotStatusOccupied {
		t.Errorf("A002 status = %q, want occupied", s.Status)
	}
}

func TestEntry_OverwritesOccupiedSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.RecordEntry(ctx, EntryInput{Plate: "FIRST1", SlotID: "D001"}); err != nil {
		t.Fatalf("RecordEntry failed: %v", err)
	}
	if _, err := f.svc.RecordEntry(ctx, EntryInput{Plate: "SECOND", SlotID: "D001"}); err != nil {
		t.Fatalf("RecordEntry should not validate availability: %v", err)
	}
	if s := findSlot(t, f, "D001"); *s.Plate != "SECOND" {
		t.Errorf("plate = %q, want SECOND", *s.Plate)
	}
}

func TestExit_OverwrittenSlotStaysWithNewPlate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.RecordEntry(ctx, EntryInput{Plate: "AAA111", SlotID: "A001"})
	if err != nil {
		t.Fatalf("RecordEntry failed: %v", err)
	}
	if _, err := f.svc.RecordEntry(ctx, EntryInput{Plate: "BBB222", SlotID: "A001"}); err != nil {
		t.Fatalf("RecordEntry failed: %v", err)
	}
	if _, err := f.svc.RecordExit(ctx, first.ID); err != nil {
		t.Fatalf("RecordExit failed: %v", err)
	}

	s := findSlot(t, f, "A001")
	if s.Status != model.SlotStatusOccupied || s.Plate == nil || *s.Plate != "BBB222" {
		t.Errorf("A001 = status:%q plate:%v, want occupied by BBB222", s.Status, s.Plate)
	}
	second, _ := f.svc.GetVehicleByPlate(ctx, "BBB222")
	if second.Status != model.VehicleStatusParked || *second.SlotNumber != "A001" {
		t.Errorf("BBB222 = status:%q slot:%v", second.Status, second.SlotNumber)
	}
}

func TestDeleteVehicle_OverwrittenSlotStaysWithNewPlate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.RecordEntry(ctx, EntryInput{Plate: "AAA111", SlotID: "B002"})
	if err != nil {
		t.Fatalf("RecordEntry failed: %v", err)
	}
	if _, err := f.svc.RecordEntry(ctx, EntryInput{Plate: "BBB222", SlotID: "B002"}); err != nil {
		t.Fatalf("RecordEntry failed: %v", err)
	}
	if _, err := f.svc.DeleteVehicle(ctx, first.ID); err != nil {
		t.Fatalf("DeleteVehicle failed: %v", err)
	}

	if s := findSlot(t, f, "B002"); s.Status != model.SlotStatusOccupied || *s.Plate != "BBB222" {
		t.Errorf("B002 = status:%q plate:%v, want occupied by BBB222", s.Status, s.Plate)
	}
}

func TestEntry_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, in := range []EntryInput{{SlotID: "A001"}, {Plate: "ABC"}, {Plate: "  ", SlotID: "A001"}} {
		_, err := f.svc.RecordEntry(ctx, in)
		apiErr := assertAPIError(t, err, model.ErrCodeValidation, http.StatusBadRequest)
		if apiErr.Message != "Plate and slotId are required" {
			t.Errorf("message = %q", apiErr.Message)
		}
	}

	_, err := f.svc.RecordEntry(ctx, EntryInput{Plate: "ABC", SlotID: "Z999"})
	assertAPIError(t, err, model.ErrCodeSlotNotFound, http.StatusNotFound)

	vehicles, _ := f.svc.ListVehicles(ctx)
	if len(vehicles) != 0 {
		t.Errorf("vehicle created despite unknown slot: %+v", vehicles)
	}
}

func TestEntry_SanitizesOwner(t *testing.T) {
	f := newFixture(t)

	v, err := f.svc.RecordEntry(context.Background(), EntryInput{Plate: "SAN001", Owner: "<script>x</script><b>Lito</b>", SlotID: "A001"})
	if err != nil {
		t.Fatalf("RecordEntry failed: %v", err)
	}
	if v.Owner != "Lito" {
		t.Errorf("owner = %q, want Lito", v.Owner)
	}
}

func TestExit_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordExit(ctx, "v_missing")
	assertAPIError(t, err, model.ErrCodeVehicleNotFound, http.StatusNotFound)

	v, _ := f.svc.RecordEntry(ctx, EntryInput{Plate: "EXT001", SlotID: "A001"})
	if _, err := f.svc.RecordExit(ctx, v.ID); err != nil {
		t.Fatalf("first exit failed: %v", err)
	}
	_, err = f.svc.RecordExit(ctx, v.ID)
	assertAPIError(t, err, model.ErrCodeVehicleNotParked, http.StatusBadRequest)
}

func TestDeleteVehicle_FreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, _ := f.svc.RecordEntry(ctx, EntryInput{Plate: "DEL001", SlotID: "E050"})
	removed, err := f.svc.DeleteVehicle(ctx, v.ID)
	if err != nil {
		t.Fatalf("DeleteVehicle failed: %v", err)
	}
	if removed.Plate != "DEL001" {
		t.Errorf("removed = %+v", removed)
	}
	if s := findSlot(t, f, "E050"); s.Status != model.SlotStatusFree {
		t.Errorf("slot status = %q, want free", s.Status)
	}

	_, err = f.svc.GetVehicle(ctx, v.ID)
	assertAPIError(t, err, model.ErrCodeVehicleNotFound, http.StatusNotFound)
	_, err = f.svc.DeleteVehicle(ctx, v.ID)
	assertAPIError(t, err, model.ErrCodeVehicleNotFound, http.StatusNotFound)
}

func TestViolation_DecrementsCreditFlooredAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, _ := f.svc.RecordEntry(ctx, EntryInput{Plate: "VIO001", SlotID: "A001"})
	if _, err := f.svc.UpdateCreditScore(ctx, v.ID, 15); err != nil {
		t.Fatalf("UpdateCreditScore failed: %v", err)
	}

	vio, err := f.svc.CreateViolation(ctx, ViolationInput{Plate: "vio001", Type: "Overstay", Fine: 500})
	if err != nil {
		t.Fatalf("CreateViolation failed: %v", err)
	}
	if vio.Status != model.ViolationStatusUnpaid || vio.PhotoURL != nil {
		t.Errorf("violation = %+v", vio)
	}

	got, _ := f.svc.GetVehicleByPlate(ctx, "VIO001")
	if got.CreditScore != 5 || got.Violations != 1 {
		t.Errorf("after 1st violation: score=%d violations=%d, want 5/1", got.CreditScore, got.Violations)
	}

	f.svc.CreateViolation(ctx, ViolationInput{Plate: "VIO001", Type: "No ticket", Fine: 200})
	got, _ = f.svc.GetVehicleByPlate(ctx, "VIO001")
	if got.CreditScore != 0 || got.Violations != 2 {
		t.Errorf("after 2nd violation: score=%d violations=%d, want 0/2", got.CreditScore, got.Violations)
	}
}

func TestViolation_KeepsNegativeScoreBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.svc.RecordEntry(ctx, EntryInput{Plate: "NEG001", SlotID: "A001"})
	if err != nil {
		t.Fatalf("RecordEntry failed: %v", err)
	}
	if _, err := f.svc.UpdateCreditScore(ctx, v.ID, -5); err != nil {
		t.Fatalf("UpdateCreditScore failed: %v", err)
	}
	if _, err := f.svc.CreateViolation(ctx, ViolationInput{Plate: "NEG001", Type: "Overstay", Fine: 300}); err != nil {
		t.Fatalf("CreateViolation failed: %v", err)
	}

	got, _ := f.svc.GetVehicle(ctx, v.ID)
	if got.CreditScore != -5 || !got.Blocked || got.Violations != 1 {
		t.Errorf("after violation: score=%d blocked=%v violations=%d, want -5/true/1", got.CreditScore, got.Blocked, got.Violations)
	}
}

func TestViolation_UnknownPlateStillRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateViolation(ctx, ViolationInput{Plate: "GHOST", Type: "Blocking", Fine: 100, PhotoURL: "https://cdn.example.com/p.jpg"}); err != nil {
		t.Fatalf("CreateViolation failed: %v", err)
	}
	violations, _ := f.svc.ListViolations(ctx)
	if len(violations) != 1 || *violations[0].PhotoURL != "https://cdn.example.com/p.jpg" {
		t.Errorf("violations = %+v", violations)
	}
	vehicles, _ := f.svc.ListVehicles(ctx)
	if len(vehicles) != 0 {
		t.Errorf("unexpected vehicle-side effect: %+v", vehicles)
	}
}

func TestViolation_Validation(t *testing.T) {
	f := newFixture(t)

	for _, in := range []ViolationInput{
		{Type: "x", Fine: 1},
		{Plate: "A", Fine: 1},
		{Plate: "A", Type: "x"},
		{Plate: "A", Type: "x", Fine: -5},
		{Plate: "A", Type: "<b></b>", Fine: 1},
	} {
		_, err := f.svc.CreateViolation(context.Background(), in)
		apiErr := assertAPIError(t, err, model.ErrCodeValidation, http.StatusBadRequest)
		if apiErr.Message != "Plate, type, and fine are required" {
			t.Errorf("message = %q", apiErr.Message)
		}
	}
}

func TestUpdateViolationStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vio, _ := f.svc.CreateViolation(ctx, ViolationInput{Plate: "P1", Type: "Overstay", Fine: 100})

	updated, err := f.svc.UpdateViolationStatus(ctx, vio.ID, UpdateViolationInput{Status: model.ViolationStatusPending})
	if err != nil || updated.Status != model.ViolationStatusPending {
		t.Fatalf("UpdateViolationStatus = %+v, %v", updated, err)
	}

	_, err = f.svc.UpdateViolationStatus(ctx, vio.ID, UpdateViolationInput{Status: "forgiven"})
	assertAPIError(t, err, model.ErrCodeValidation, http.StatusBadRequest)

	_, err = f.svc.UpdateViolationStatus(ctx, "vio_missing", UpdateViolationInput{Status: model.ViolationStatusPaid})
	assertAPIError(t, err, model.ErrCodeViolationNotFound, http.StatusNotFound)
}

func TestCreditScore_NegativeMeansBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, _ := f.svc.RecordEntry(ctx, EntryInput{Plate: "BLK001", SlotID: "A001"})
	parked, err := f.svc.UpdateCreditScore(ctx, v.ID, -5)
	if err != nil {
		t.Fatalf("UpdateCreditScore failed: %v", err)
	}
	if !parked.Blocked || parked.Status != model.VehicleStatusParked {
		t.Errorf("parked blocked vehicle = blocked:%v status:%q", parked.Blocked, parked.Status)
	}

	f.svc.RecordExit(ctx, v.ID)
	got, _ := f.svc.GetVehicle(ctx, v.ID)
	if !got.Blocked || got.Status != model.VehicleStatusBlocked {
		t.Errorf("exited blocked vehicle = blocked:%v status:%q", got.Blocked, got.Status)
	}

	// 保存値のstatusはexitedのまま
	stored, _ := f.repos.Vehicles.List(ctx)
	if stored[0].Status != model.VehicleStatusExited || stored[0].Blocked {
		t.Errorf("stored = %+v", stored[0])
	}

	_, err = f.svc.UpdateCreditScore(ctx, "v_missing", 1)
	assertAPIError(t, err, model.ErrCodeVehicleNotFound, http.StatusNotFound)
}

func TestPayment_ViolationPaymentMarksViolationPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vio, _ := f.svc.CreateViolation(ctx, ViolationInput{Plate: "PAY001", Type: "Overstay", Fine: 300})

	p, err := f.svc.CreatePayment(ctx, PaymentInput{
		Plate:       "PAY001",
		Amount:      300,
		Method:      model.PaymentMethodCash,
		Type:        model.PaymentTypeViolation,
		ReferenceID: vio.ID,
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if p.Status != model.PaymentStatusCompleted || p.ReferenceID == nil || *p.ReferenceID != vio.ID {
		t.Errorf("payment = %+v", p)
	}

	violations, _ := f.svc.ListViolations(ctx)
	if violations[0].Status != model.ViolationStatusPaid {
		t.Errorf("violation status = %q, want paid", violations[0].Status)
	}
	if len(f.recorder.payments) != 1 || f.recorder.payments[0] != "Cash/violation" {
		t.Errorf("recorded payments = %v", f.recorder.payments)
	}
}

func TestPayment_ParkingPaymentDoesNotTouchViolations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vio, _ := f.svc.CreateViolation(ctx, ViolationInput{Plate: "PAY002", Type: "Overstay", Fine: 300})
	f.svc.CreatePayment(ctx, PaymentInput{
		Plate: "PAY002", Amount: 50, Method: model.PaymentMethodCard, Type: model.PaymentTypeParking, ReferenceID: vio.ID,
	})

	violations, _ := f.svc.ListViolations(ctx)
	if violations[0].Status != model.ViolationStatusUnpaid {
		t.Errorf("violation status = %q, want unpaid", violations[0].Status)
	}
}

func TestPayment_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreatePayment(ctx, PaymentInput{Plate: "A", Method: model.PaymentMethodCash, Type: model.PaymentTypeParking})
	apiErr := assertAPIError(t, err, model.ErrCodeValidation, http.StatusBadRequest)
	if apiErr.Message != "Plate, amount, method, and type are required" {
		t.Errorf("message = %q", apiErr.Message)
	}

	_, err = f.svc.CreatePayment(ctx, PaymentInput{Plate: "A", Amount: 1, Method: "Bitcoin", Type: model.PaymentTypeParking})
	assertAPIError(t, err, model.ErrCodeValidation, http.StatusBadRequest)

	_, err = f.svc.CreatePayment(ctx, PaymentInput{Plate: "A", Amount: 1, Method: model.PaymentMethodCash, Type: "tip"})
	assertAPIError(t, err, model.ErrCodeValidation, http.StatusBadRequest)
}

func TestGCashPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreateGCashPayment(ctx, GCashPaymentInput{Plate: "gc001", Amount: 75, Type: model.PaymentTypeParking})
	if err != nil {
		t.Fatalf("CreateGCashPayment failed: %v", err)
	}
	want := fmt.Sprintf("GC%d", f.now.UnixMilli())
	if p.Method != model.PaymentMethodGCash || p.GCashReferenceNumber == nil || *p.GCashReferenceNumber != want {
		t.Errorf("payment = %+v, want reference %s", p, want)
	}
	if p.Plate != "GC001" {
		t.Errorf("plate = %q", p.Plate)
	}

	_, err = f.svc.CreateGCashPayment(ctx, GCashPaymentInput{Plate: "gc001", Type: model.PaymentTypeParking})
	apiErr := assertAPIError(t, err, model.ErrCodeValidation, http.StatusBadRequest)
	if apiErr.Message != "Plate, amount, and type are required" {
		t.Errorf("message = %q", apiErr.Message)
	}

	payments, _ := f.svc.ListPayments(ctx)
	if len(payments) != 1 {
		t.Errorf("len(payments) = %d, want 1", len(payments))
	}
}

func TestSlots_ZoneFilterAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	zone, err := f.svc.ListSlotsByZone(ctx, "c")
	if err != nil || len(zone) != 100 || zone[0].ID != "C001" {
		t.Fatalf("ListSlotsByZone = %d slots, %v", len(zone), err)
	}
	if empty, _ := f.svc.ListSlotsByZone(ctx, "Z"); len(empty) != 0 {
		t.Errorf("unknown zone returned %d slots", len(empty))
	}

	sl, err := f.svc.UpdateSlot(ctx, "C001", UpdateSlotInput{Status: model.SlotStatusOccupied, Plate: "man001"})
	if err != nil {
		t.Fatalf("UpdateSlot failed: %v", err)
	}
	if sl.EntryTime == nil || *sl.Plate != "MAN001" {
		t.Errorf("occupied slot = %+v", sl)
	}

	sl, _ = f.svc.UpdateSlot(ctx, "C001", UpdateSlotInput{Status: model.SlotStatusReserved})
	if sl.EntryTime != nil || sl.Plate != nil {
		t.Errorf("reserved slot = %+v", sl)
	}

	_, err = f.svc.UpdateSlot(ctx, "C001", UpdateSlotInput{Status: "broken"})
	assertAPIError(t, err, model.ErrCodeValidation, http.StatusBadRequest)
	_, err = f.svc.UpdateSlot(ctx, "Z001", UpdateSlotInput{Status: model.SlotStatusFree})
	assertAPIError(t, err, model.ErrCodeSlotNotFound, http.StatusNotFound)
}

func TestConcurrentEntries_NoLostUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 30
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.RecordEntry(ctx, EntryInput{
				Plate:  fmt.Sprintf("CON%03d", i),
				SlotID: fmt.Sprintf("B%03d", i+1),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("RecordEntry failed: %v", err)
		}
	}

	vehicles, _ := f.svc.ListVehicles(ctx)
	if len(vehicles) != n {
		t.Errorf("len(vehicles) = %d, want %d", len(vehicles), n)
	}
	occupied := 0
	slots, _ := f.svc.ListSlotsByZone(ctx, "B")
	for _, sl := range slots {
		if sl.Status == model.SlotStatusOccupied {
			occupied++
		}
	}
	if occupied != n {
		t.Errorf("occupied = %d, want %d", occupied, n)
	}
}
