package medicalrecord

import (
	"context"
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
		testEngine, err = crypto.NewEngine("record-test-encryption-secret", "record-test-pepper")
		if err != nil {
			t.Fatal(err)
		}
	})
	return testEngine
}

type mockRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*Record
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Record)}
}

func (m *mockRepo) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.store[r.ID] = r
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, orgID, id uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok || r.OrganizationID != orgID {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, orgID, patientID uuid.UUID, _, _ int) ([]*Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Record
	for _, r := range m.store {
		if r.OrganizationID == orgID && r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) UpdateContent(_ context.Context, orgID, id uuid.UUID, fromStatus string, content map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok || r.OrganizationID != orgID || r.Status != fromStatus {
		return false, nil
	}
	r.Content = content
	return true, nil
}

func (m *mockRepo) SetSigned(_ context.Context, orgID, id uuid.UUID, sig signing.Signature) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok || r.OrganizationID != orgID || r.Status != StatusDraft {
		return false, nil
	}
	r.Status = StatusSigned
	r.SignatureHash = &sig.Hash
	r.SignedAt = &sig.SignedAt
	r.SignedByIP = &sig.SignedIP
	r.SignedLicenseNumber = &sig.License.Number
	r.SignedLicenseState = &sig.License.State
	return true, nil
}

type memRecorder struct {
	mu      sync.Mutex
	entries []*audit.Entry
	fail    bool
}

func (m *memRecorder) Record(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return apperr.Storage("audit: insert", context.DeadlineExceeded)
	}
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
	repo     *mockRepo
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
		repo:           newMockRepo(),
		recorder:       &memRecorder{},
		licenses:       &staticLicenses{lic: signing.License{Number: "123456", State: "SP"}},
		orgID:          uuid.New(),
		consultationID: uuid.New(),
		patientID:      uuid.New(),
		doctorID:       uuid.New(),
	}
	encounters := staticEncounters{enc: map[uuid.UUID]*Encounter{
		f.consultationID: {PatientID: f.patientID, DoctorID: f.doctorID},
	}}
	signer := signing.NewSigner(engine(t), f.recorder)
	f.svc = NewService(f.repo, encounters, f.licenses, signer, db.PassthroughTxRunner())
	return f
}

func (f *fixture) create(t *testing.T, content map[string]any) *Record {
	t.Helper()
	r, err := f.svc.Create(context.Background(), f.orgID, f.consultationID, f.doctorID, content)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestCreate_OwnershipChecks(t *testing.T) {
	f := newFixture(t)

	t.Run("owning doctor", func(t *testing.T) {
		r := f.create(t, map[string]any{"chief_complaint": "insomnia"})
		if r.Status != StatusDraft {
			t.Fatalf("status = %s", r.Status)
		}
		if r.PatientID != f.patientID {
			t.Fatal("patient not taken from the consultation")
		}
	})

	t.Run("another doctor", func(t *testing.T) {
		_, err := f.svc.Create(context.Background(), f.orgID, f.consultationID, uuid.New(), nil)
		if !apperr.Is(err, apperr.KindForbidden) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})

	t.Run("unknown consultation", func(t *testing.T) {
		_, err := f.svc.Create(context.Background(), f.orgID, uuid.New(), f.doctorID, nil)
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})
}

func TestUpdateContent_Merge(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, map[string]any{"chief_complaint": "insomnia", "allergies": "none"})

	got, err := f.svc.UpdateContent(context.Background(), f.orgID, r.ID, f.doctorID,
		map[string]any{"chief_complaint": "chronic insomnia", "plan": "sleep study"})
	if err != nil {
		t.Fatal(err)
	}

	if got.Content["chief_complaint"] != "chronic insomnia" {
		t.Fatal("patched key not overwritten")
	}
	if got.Content["allergies"] != "none" {
		t.Fatal("absent key dropped by merge")
	}
	if got.Content["plan"] != "sleep study" {
		t.Fatal("new key not added")
	}

	t.Run("wrong doctor", func(t *testing.T) {
		_, err := f.svc.UpdateContent(context.Background(), f.orgID, r.ID, uuid.New(), map[string]any{"x": 1})
		if !apperr.Is(err, apperr.KindForbidden) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})
}

func TestSign(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, map[string]any{"assessment": "cleared for treatment"})

	signed, err := f.svc.Sign(context.Background(), f.orgID, r.ID, f.doctorID, "10.0.0.7")
	if err != nil {
		t.Fatal(err)
	}
	if signed.Status != StatusSigned || signed.SignatureHash == nil || signed.SignedAt == nil {
		t.Fatalf("signed = %+v", signed)
	}
	if *signed.SignedByIP != "10.0.0.7" {
		t.Fatalf("signed_by_ip = %q", *signed.SignedByIP)
	}

	t.Run("audit entry recorded", func(t *testing.T) {
		entries, total, err := f.recorder.ListByEntity(context.Background(), EntityType, r.ID, 10, 0)
		if err != nil {
			t.Fatal(err)
		}
		if total != 1 || entries[0].Action != audit.ActionSign {
			t.Fatalf("audit trail = %+v", entries)
		}
	})

	t.Run("verification passes on reconstruction", func(t *testing.T) {
		valid, err := f.svc.VerifySignature(context.Background(), f.orgID, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !valid {
			t.Fatal("signature did not verify")
		}
	})

	t.Run("verification survives a license correction", func(t *testing.T) {
		f.licenses.set(signing.License{Number: "445566", State: "MG"})

		valid, err := f.svc.VerifySignature(context.Background(), f.orgID, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !valid {
			t.Fatal("untampered signature failed verification after a license update")
		}
	})

	t.Run("tampered content fails verification", func(t *testing.T) {
		f.repo.mu.Lock()
		f.repo.store[r.ID].Content["assessment"] = "altered after signing"
		f.repo.mu.Unlock()

		valid, err := f.svc.VerifySignature(context.Background(), f.orgID, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		if valid {
			t.Fatal("tampered content verified")
		}
	})

	t.Run("second sign is rejected", func(t *testing.T) {
		_, err := f.svc.Sign(context.Background(), f.orgID, r.ID, f.doctorID, "10.0.0.7")
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})

	t.Run("signed record cannot be edited", func(t *testing.T) {
		_, err := f.svc.UpdateContent(context.Background(), f.orgID, r.ID, f.doctorID, map[string]any{"x": 1})
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})
}

func TestSign_ConcurrentExclusivity(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, map[string]any{"assessment": "x"})

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Sign(context.Background(), f.orgID, r.ID, f.doctorID, "10.0.0.7")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("loser got kind %v, want BadRequest", apperr.KindOf(err))
		}
	}
	if wins != 1 {
		t.Fatalf("%d sign attempts succeeded, want exactly 1", wins)
	}

	_, total, err := f.recorder.ListByEntity(context.Background(), EntityType, r.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("%d audit entries, want 1", total)
	}
}

func TestSign_AuditFailureAborts(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, map[string]any{"assessment": "x"})
	f.recorder.fail = true

	_, err := f.svc.Sign(context.Background(), f.orgID, r.ID, f.doctorID, "10.0.0.7")
	if !apperr.Is(err, apperr.KindStorage) {
		t.Fatalf("kind = %v, want Storage when the audit write fails", apperr.KindOf(err))
	}
}
