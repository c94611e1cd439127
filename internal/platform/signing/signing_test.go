package signing

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/audit"
	"github.com/clinika/clinika/internal/platform/crypto"
	"github.com/clinika/clinika/internal/platform/metrics"
)

type memRecorder struct {
	mu      sync.Mutex
	entries []*audit.Entry
	fail    bool
}

func (m *memRecorder) Record(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return apperr.Storage("audit unavailable", nil)
	}
	e.ID = uuid.New()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRecorder) ListByEntity(_ context.Context, entityType string, entityID uuid.UUID, _, _ int) ([]*audit.Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*audit.Entry
	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (m *memRecorder) ListByActor(_ context.Context, actorID uuid.UUID, _, _ int) ([]*audit.Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*audit.Entry
	for _, e := range m.entries {
		if e.ActorUserID == actorID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

var (
	engineOnce sync.Once
	engineVal  *crypto.Engine
)

func testSigner(t *testing.T, rec audit.Recorder, opts ...SignerOption) *Signer {
	t.Helper()
	engineOnce.Do(func() {
		e, err := crypto.NewEngine("signing-test-secret", "signing-test-pepper")
		if err != nil {
			t.Fatalf("create engine: %v", err)
		}
		engineVal = e
	})
	return NewSigner(engineVal, rec, opts...)
}

func TestMachine_Validate(t *testing.T) {
	m := NewMachine("prescription", map[string][]string{
		"DRAFT":  {"SIGNED", "REVOKED"},
		"SIGNED": {"REVOKED"},
	})

	if err := m.Validate("DRAFT", "SIGNED"); err != nil {
		t.Fatalf("valid transition rejected: %v", err)
	}

	err := m.Validate("SIGNED", "DRAFT")
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("kind = %v, want BadRequest", apperr.KindOf(err))
	}
	if !strings.Contains(err.Error(), "SIGNED") || !strings.Contains(err.Error(), "DRAFT") {
		t.Fatalf("error %q does not name the (from, to) pair", err.Error())
	}

	if !m.Terminal("REVOKED") {
		t.Fatal("REVOKED should be terminal")
	}
	if m.Terminal("DRAFT") {
		t.Fatal("DRAFT should not be terminal")
	}
}

func TestMergeContent(t *testing.T) {
	existing := map[string]any{
		"anamnese":  "histórico inicial",
		"conduta":   "repouso",
		"exam_refs": []any{"hemograma"},
	}
	patch := map[string]any{
		"conduta":   "repouso e hidratação",
		"evolucao":  "melhora parcial",
	}

	merged := MergeContent(existing, patch)

	if merged["anamnese"] != "histórico inicial" {
		t.Error("absent key was not preserved")
	}
	if merged["conduta"] != "repouso e hidratação" {
		t.Error("patched key was not overwritten")
	}
	if merged["evolucao"] != "melhora parcial" {
		t.Error("new key was not added")
	}
	if existing["conduta"] != "repouso" {
		t.Error("existing map was mutated")
	}
}

func TestSigner_SealAndVerify(t *testing.T) {
	rec := &memRecorder{}
	fixed := time.Date(2026, 5, 2, 10, 30, 0, 0, time.UTC)
	signer := testSigner(t, rec, WithClock(func() time.Time { return fixed }))

	payload := Payload{
		EntityType: "prescription",
		EntityID:   uuid.New(),
		PatientID:  uuid.New(),
		DoctorID:   uuid.New(),
		License:    License{Number: "123456", State: "SP"},
		Content:    map[string]any{"items": []any{map[string]any{"drug": "amoxicilina", "dose_mg": 500}}},
	}

	sig, err := signer.Seal(payload, "203.0.113.9")
	if err != nil {
		t.Fatal(err)
	}
	if sig.SignedAt != fixed {
		t.Fatalf("SignedAt = %v, want %v", sig.SignedAt, fixed)
	}
	if sig.SignedIP != "203.0.113.9" {
		t.Fatalf("SignedIP = %q", sig.SignedIP)
	}
	if sig.License != payload.License {
		t.Fatalf("License = %+v, want the sealed payload's %+v", sig.License, payload.License)
	}

	ok, err := signer.Verify(payload, sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("round-trip verification failed")
	}

	// Reconstruction from stored fields must reproduce the hash.
	reconstructed := Payload{
		EntityType: payload.EntityType,
		EntityID:   payload.EntityID,
		PatientID:  payload.PatientID,
		DoctorID:   payload.DoctorID,
		License:    payload.License,
		Content:    map[string]any{"items": []any{map[string]any{"dose_mg": 500, "drug": "amoxicilina"}}},
	}
	ok, err = signer.Verify(reconstructed, sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("reconstructed payload did not verify")
	}

	// Tampered content must not verify.
	tampered := reconstructed
	tampered.Content = map[string]any{"items": []any{map[string]any{"dose_mg": 5000, "drug": "amoxicilina"}}}
	ok, err = signer.Verify(tampered, sig)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("tampered payload verified")
	}
}

func TestSigner_MarkSignedCountsOnlyCommittedSignatures(t *testing.T) {
	m := metrics.New()
	signer := testSigner(t, &memRecorder{}, WithMetrics(m))

	payload := Payload{
		EntityType: "prescription",
		EntityID:   uuid.New(),
		License:    License{Number: "123456", State: "SP"},
		Content:    map[string]any{"items": []any{}},
	}
	if _, err := signer.Seal(payload, "203.0.113.9"); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.DocumentsSigned.WithLabelValues("prescription")); got != 0 {
		t.Fatalf("counter after Seal = %v, want 0 until the status flip commits", got)
	}

	signer.MarkSigned("prescription")
	if got := testutil.ToFloat64(m.DocumentsSigned.WithLabelValues("prescription")); got != 1 {
		t.Fatalf("counter after commit = %v, want 1", got)
	}
}

func TestSigner_Audit(t *testing.T) {
	rec := &memRecorder{}
	signer := testSigner(t, rec)
	actor := uuid.New()
	entity := uuid.New()

	err := signer.Audit(context.Background(), actor, audit.ActionSign, "medical_record", entity,
		"198.51.100.4", map[string]any{"signature_hash": "abc"})
	if err != nil {
		t.Fatal(err)
	}

	entries, total, err := rec.ListByEntity(context.Background(), "medical_record", entity, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
	if entries[0].Action != audit.ActionSign || entries[0].ActorUserID != actor {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestSigner_AuditFailurePropagates(t *testing.T) {
	rec := &memRecorder{fail: true}
	signer := testSigner(t, rec)

	err := signer.Audit(context.Background(), uuid.New(), audit.ActionSign, "prescription", uuid.New(), "", nil)
	if !apperr.Is(err, apperr.KindStorage) {
		t.Fatalf("kind = %v, want Storage (audit failures must never be silent)", apperr.KindOf(err))
	}
}
