package prescription

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/audit"
	"github.com/clinika/clinika/internal/platform/crypto"
	"github.com/clinika/clinika/internal/platform/db"
	"github.com/clinika/clinika/internal/platform/signing"
)

var (
	engineOnce sync.Once
	testEngine *crypto.Engine
)

func engine(t *testing.T) *crypto.Engine {
	t.Helper()
	engineOnce.Do(func() {
		var err error
		testEngine, err = crypto.NewEngine("prescription-test-encryption-secret", "prescription-test-pepper")
		if err != nil {
			t.Fatal(err)
		}
	})
	return testEngine
}

type mockRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*Prescription
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Prescription)}
}

func (m *mockRepo) Create(_ context.Context, p *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.store[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, orgID, id uuid.UUID) (*Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.OrganizationID != orgID {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, orgID, patientID uuid.UUID, _, _ int) ([]*Prescription, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Prescription
	for _, p := range m.store {
		if p.OrganizationID == orgID && p.PatientID == patientID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) UpdateContent(_ context.Context, orgID, id uuid.UUID, fromStatus string, content map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.OrganizationID != orgID || p.Status != fromStatus {
		return false, nil
	}
	p.Content = content
	return true, nil
}

func (m *mockRepo) SetSigned(_ context.Context, orgID, id uuid.UUID, sig signing.Signature) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.OrganizationID != orgID || p.Status != StatusDraft {
		return false, nil
	}
	p.Status = StatusSigned
	p.SignatureHash = &sig.Hash
	p.SignedAt = &sig.SignedAt
	p.SignedByIP = &sig.SignedIP
	p.SignedLicenseNumber = &sig.License.Number
	p.SignedLicenseState = &sig.License.State
	return true, nil
}

func (m *mockRepo) SetRevoked(_ context.Context, orgID, id uuid.UUID, fromStatus, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.OrganizationID != orgID || p.Status != fromStatus {
		return false, nil
	}
	p.Status = StatusRevoked
	p.RevokedAt = &at
	p.RevokeReason = &reason
	return true, nil
}

type memRecorder struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (m *memRecorder) Record(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	e.RecordedAt = time.Now()
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

type staticEncounters struct {
	enc map[uuid.UUID]*Encounter
}

func (s staticEncounters) Encounter(_ context.Context, _, consultationID uuid.UUID) (*Encounter, error) {
	return s.enc[consultationID], nil
}

type staticLicenses struct {
	mu  sync.Mutex
	lic signing.License
}

func (s *staticLicenses) License(context.Context, uuid.UUID, uuid.UUID) (signing.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lic, nil
}

func (s *staticLicenses) set(lic signing.License) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lic = lic
}

type fixture struct {
	svc      *Service
	recorder *memRecorder
	licenses *staticLicenses

	orgID          uuid.UUID
	consultationID uuid.UUID
	patientID      uuid.UUID
	doctorID       uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		recorder:       &memRecorder{},
		licenses:       &staticLicenses{lic: signing.License{Number: "654321", State: "RJ"}},
		orgID:          uuid.New(),
		consultationID: uuid.New(),
		patientID:      uuid.New(),
		doctorID:       uuid.New(),
	}
	encounters := staticEncounters{enc: map[uuid.UUID]*Encounter{
		f.consultationID: {PatientID: f.patientID, DoctorID: f.doctorID},
	}}
	signer := signing.NewSigner(engine(t), f.recorder)
	f.svc = NewService(newMockRepo(), encounters, f.licenses, signer, db.PassthroughTxRunner())
	return f
}

func (f *fixture) create(t *testing.T) *Prescription {
	t.Helper()
	p, err := f.svc.Create(context.Background(), f.orgID, f.consultationID, f.doctorID,
		map[string]any{"medications": []any{map[string]any{"name": "CBD oil", "dose": "0.3ml 2x/day"}}})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCreate(t *testing.T) {
	f := newFixture(t)

	t.Run("empty content", func(t *testing.T) {
		_, err := f.svc.Create(context.Background(), f.orgID, f.consultationID, f.doctorID, nil)
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})

	t.Run("another doctor", func(t *testing.T) {
		_, err := f.svc.Create(context.Background(), f.orgID, f.consultationID, uuid.New(),
			map[string]any{"medications": []any{}})
		if !apperr.Is(err, apperr.KindForbidden) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})

	t.Run("owning doctor", func(t *testing.T) {
		p := f.create(t)
		if p.Status != StatusDraft {
			t.Fatalf("status = %s", p.Status)
		}
	})
}

func TestSignAndVerify(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	signed, err := f.svc.Sign(context.Background(), f.orgID, p.ID, f.doctorID, "192.0.2.1")
	if err != nil {
		t.Fatal(err)
	}
	if signed.Status != StatusSigned || signed.SignatureHash == nil {
		t.Fatalf("signed = %+v", signed)
	}

	valid, err := f.svc.VerifySignature(context.Background(), f.orgID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Fatal("signature did not verify")
	}

	t.Run("sign twice names the status", func(t *testing.T) {
		_, err := f.svc.Sign(context.Background(), f.orgID, p.ID, f.doctorID, "192.0.2.1")
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
		if !strings.Contains(err.Error(), StatusSigned) {
			t.Fatalf("error %q should name the current status", err.Error())
		}
	})
}

func TestVerifySignature_SurvivesLicenseCorrection(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	signed, err := f.svc.Sign(context.Background(), f.orgID, p.ID, f.doctorID, "192.0.2.1")
	if err != nil {
		t.Fatal(err)
	}
	if signed.SignedLicenseNumber == nil || *signed.SignedLicenseNumber != "654321" ||
		signed.SignedLicenseState == nil || *signed.SignedLicenseState != "RJ" {
		t.Fatalf("license snapshot = %v/%v, want 654321/RJ",
			signed.SignedLicenseNumber, signed.SignedLicenseState)
	}

	valid, err := f.svc.VerifySignature(context.Background(), f.orgID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Fatal("signature did not verify")
	}

	// A CRM correction on the doctor profile must not invalidate documents
	// signed under the previous registration.
	f.licenses.set(signing.License{Number: "998877", State: "SP"})

	valid, err = f.svc.VerifySignature(context.Background(), f.orgID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Fatal("untampered signature failed verification after a license update")
	}
}

func TestRevoke(t *testing.T) {
	t.Run("from draft", func(t *testing.T) {
		f := newFixture(t)
		p := f.create(t)

		got, err := f.svc.Revoke(context.Background(), f.orgID, p.ID, f.doctorID, "posology error", "192.0.2.1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != StatusRevoked || got.RevokedAt == nil || *got.RevokeReason != "posology error" {
			t.Fatalf("revoked = %+v", got)
		}
	})

	t.Run("from signed, with audit trail", func(t *testing.T) {
		f := newFixture(t)
		p := f.create(t)
		if _, err := f.svc.Sign(context.Background(), f.orgID, p.ID, f.doctorID, "192.0.2.1"); err != nil {
			t.Fatal(err)
		}
		if _, err := f.svc.Revoke(context.Background(), f.orgID, p.ID, f.doctorID, "patient reaction", "192.0.2.1"); err != nil {
			t.Fatal(err)
		}

		entries, _, err := f.recorder.ListByEntity(context.Background(), EntityType, p.ID, 10, 0)
		if err != nil {
			t.Fatal(err)
		}
		actions := make([]string, len(entries))
		for i, e := range entries {
			actions[i] = e.Action
		}
		if len(actions) != 2 || actions[0] != audit.ActionSign || actions[1] != audit.ActionRevoke {
			t.Fatalf("audit actions = %v", actions)
		}
	})

	t.Run("requires a reason", func(t *testing.T) {
		f := newFixture(t)
		p := f.create(t)
		_, err := f.svc.Revoke(context.Background(), f.orgID, p.ID, f.doctorID, "", "192.0.2.1")
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})

	t.Run("revoked is terminal", func(t *testing.T) {
		f := newFixture(t)
		p := f.create(t)
		if _, err := f.svc.Revoke(context.Background(), f.orgID, p.ID, f.doctorID, "error", "192.0.2.1"); err != nil {
			t.Fatal(err)
		}
		_, err := f.svc.Sign(context.Background(), f.orgID, p.ID, f.doctorID, "192.0.2.1")
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v, want BadRequest signing a revoked prescription", apperr.KindOf(err))
		}
	})
}

func TestUpdateContent_OnlyDraft(t *testing.T) {
	f := newFixture(t)
	p := f.create(t)

	got, err := f.svc.UpdateContent(context.Background(), f.orgID, p.ID, f.doctorID,
		map[string]any{"notes": "take with food"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Content["notes"] != "take with food" {
		t.Fatal("patch not applied")
	}
	if got.Content["medications"] == nil {
		t.Fatal("merge dropped existing keys")
	}

	if _, err := f.svc.Sign(context.Background(), f.orgID, p.ID, f.doctorID, "192.0.2.1"); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.UpdateContent(context.Background(), f.orgID, p.ID, f.doctorID, map[string]any{"x": 1})
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("kind = %v", apperr.KindOf(err))
	}
}
