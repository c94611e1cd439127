package anvisareport

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
		testEngine, err = crypto.NewEngine("report-test-encryption-secret", "report-test-pepper")
		if err != nil {
			t.Fatal(err)
		}
	})
	return testEngine
}

type mockRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*Report
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Report)}
}

func (m *mockRepo) Create(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.store[r.ID] = r
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, orgID, id uuid.UUID) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok || r.OrganizationID != orgID {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, orgID, patientID uuid.UUID, _, _ int) ([]*Report, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Report
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

func (m *mockRepo) SetSigned(_ context.Context, orgID, id uuid.UUID, fromStatus string, sig signing.Signature, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok || r.OrganizationID != orgID || r.Status != fromStatus {
		return false, nil
	}
	r.Status = StatusSigned
	r.SignatureHash = &sig.Hash
	r.SignedAt = &sig.SignedAt
	r.SignedByIP = &sig.SignedIP
	r.SignedLicenseNumber = &sig.License.Number
	r.SignedLicenseState = &sig.License.State
	r.ExpiresAt = &expiresAt
	return true, nil
}

func (m *mockRepo) SetStatus(_ context.Context, orgID, id uuid.UUID, from, to string, at time.Time, note *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok || r.OrganizationID != orgID || r.Status != from {
		return false, nil
	}
	r.Status = to
	switch to {
	case StatusSubmitted:
		r.SubmittedAt = &at
		r.ProtocolNumber = note
	case StatusApproved, StatusRejected:
		r.DecidedAt = &at
		r.AgencyResponse = note
	}
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

type allowPatients struct{}

func (allowPatients) Exists(context.Context, uuid.UUID, uuid.UUID) (bool, error) { return true, nil }

type stagePipeline struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (p *stagePipeline) AdvanceStage(_ context.Context, _, patientID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, patientID)
	return nil
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
	pipeline *stagePipeline
	licenses *staticLicenses

	orgID     uuid.UUID
	patientID uuid.UUID
	doctorID  uuid.UUID
	adminID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		recorder:  &memRecorder{},
		pipeline:  &stagePipeline{},
		licenses:  &staticLicenses{lic: signing.License{Number: "123456", State: "SP"}},
		orgID:     uuid.New(),
		patientID: uuid.New(),
		doctorID:  uuid.New(),
		adminID:   uuid.New(),
	}
	signer := signing.NewSigner(engine(t), f.recorder)
	f.svc = NewService(newMockRepo(), allowPatients{}, f.pipeline, f.licenses, signer, db.PassthroughTxRunner())
	return f
}

func (f *fixture) create(t *testing.T, content map[string]any) *Report {
	t.Helper()
	r, err := f.svc.Create(context.Background(), f.orgID, f.patientID, f.doctorID, content)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func (f *fixture) createSigned(t *testing.T) *Report {
	t.Helper()
	r := f.create(t, map[string]any{"indication": "chronic pain", "patient_consent": true})
	signed, err := f.svc.Sign(context.Background(), f.orgID, r.ID, f.doctorID, "198.51.100.9")
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestSign_RequiresConsent(t *testing.T) {
	f := newFixture(t)

	t.Run("missing consent", func(t *testing.T) {
		r := f.create(t, map[string]any{"indication": "chronic pain"})
		_, err := f.svc.Sign(context.Background(), f.orgID, r.ID, f.doctorID, "198.51.100.9")
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})

	t.Run("consent declared false", func(t *testing.T) {
		r := f.create(t, map[string]any{"patient_consent": false})
		_, err := f.svc.Sign(context.Background(), f.orgID, r.ID, f.doctorID, "198.51.100.9")
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})

	t.Run("with consent", func(t *testing.T) {
		signed := f.createSigned(t)
		if signed.Status != StatusSigned || signed.SignatureHash == nil {
			t.Fatalf("signed = %+v", signed)
		}
	})
}

func TestSign_ExpiryOneYear(t *testing.T) {
	f := newFixture(t)
	signed := f.createSigned(t)

	if signed.ExpiresAt == nil || signed.SignedAt == nil {
		t.Fatalf("signed = %+v", signed)
	}
	if got, want := *signed.ExpiresAt, signed.SignedAt.Add(ReportValidity); !got.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", got, want)
	}
}

func TestSign_FromPendingSignature(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, map[string]any{"patient_consent": true})

	if _, err := f.svc.MarkReady(context.Background(), f.orgID, r.ID, f.doctorID); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.Get(context.Background(), f.orgID, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPendingSignature {
		t.Fatalf("status = %s", got.Status)
	}

	t.Run("still editable while pending", func(t *testing.T) {
		if _, err := f.svc.UpdateContent(context.Background(), f.orgID, r.ID, f.doctorID,
			map[string]any{"dosage": "adjusted"}); err != nil {
			t.Fatal(err)
		}
	})

	if _, err := f.svc.Sign(context.Background(), f.orgID, r.ID, f.doctorID, "198.51.100.9"); err != nil {
		t.Fatal(err)
	}
}

func TestRegulatoryFlow(t *testing.T) {
	f := newFixture(t)
	r := f.createSigned(t)

	t.Run("approve before submission is invalid", func(t *testing.T) {
		_, err := f.svc.Approve(context.Background(), f.orgID, r.ID, f.adminID, "", "203.0.113.4")
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})

	t.Run("submission requires a protocol number", func(t *testing.T) {
		_, err := f.svc.Submit(context.Background(), f.orgID, r.ID, f.adminID, "", "203.0.113.4")
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})

	got, err := f.svc.Submit(context.Background(), f.orgID, r.ID, f.adminID, "ANV-2024-00871", "203.0.113.4")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusSubmitted || got.SubmittedAt == nil {
		t.Fatalf("submitted = %+v", got)
	}
	if got.ProtocolNumber == nil || *got.ProtocolNumber != "ANV-2024-00871" {
		t.Fatalf("protocol_number = %v", got.ProtocolNumber)
	}

	got, err = f.svc.Approve(context.Background(), f.orgID, r.ID, f.adminID, "cleared for dispensing", "203.0.113.4")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusApproved || got.DecidedAt == nil {
		t.Fatalf("approved = %+v", got)
	}
	if got.AgencyResponse == nil || *got.AgencyResponse != "cleared for dispensing" {
		t.Fatalf("agency_response = %v", got.AgencyResponse)
	}

	t.Run("approval advances the patient", func(t *testing.T) {
		f.pipeline.mu.Lock()
		defer f.pipeline.mu.Unlock()
		if len(f.pipeline.calls) != 1 || f.pipeline.calls[0] != f.patientID {
			t.Fatalf("pipeline calls = %v", f.pipeline.calls)
		}
	})

	t.Run("audit trail covers the flow", func(t *testing.T) {
		entries, _, err := f.recorder.ListByEntity(context.Background(), EntityType, r.ID, 10, 0)
		if err != nil {
			t.Fatal(err)
		}
		actions := make([]string, len(entries))
		for i, e := range entries {
			actions[i] = e.Action
		}
		want := []string{audit.ActionSign, audit.ActionSubmit, audit.ActionApprove}
		if len(actions) != len(want) {
			t.Fatalf("audit actions = %v", actions)
		}
		for i := range want {
			if actions[i] != want[i] {
				t.Fatalf("audit actions = %v, want %v", actions, want)
			}
		}
		if got := entries[1].Metadata["protocol_number"]; got != "ANV-2024-00871" {
			t.Fatalf("submit metadata = %v", entries[1].Metadata)
		}
		if got := entries[2].Metadata["agency_response"]; got != "cleared for dispensing" {
			t.Fatalf("approve metadata = %v", entries[2].Metadata)
		}
	})

	t.Run("approved is terminal", func(t *testing.T) {
		_, err := f.svc.Submit(context.Background(), f.orgID, r.ID, f.adminID, "ANV-2024-00872", "203.0.113.4")
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	r := f.createSigned(t)

	if _, err := f.svc.Submit(context.Background(), f.orgID, r.ID, f.adminID, "ANV-2024-00904", "203.0.113.4"); err != nil {
		t.Fatal(err)
	}

	t.Run("rejection requires the agency response", func(t *testing.T) {
		_, err := f.svc.Reject(context.Background(), f.orgID, r.ID, f.adminID, "", "203.0.113.4")
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})

	got, err := f.svc.Reject(context.Background(), f.orgID, r.ID, f.adminID, "dosage exceeds the permitted ceiling", "203.0.113.4")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusRejected {
		t.Fatalf("status = %s", got.Status)
	}
	if got.AgencyResponse == nil || *got.AgencyResponse != "dosage exceeds the permitted ceiling" {
		t.Fatalf("agency_response = %v", got.AgencyResponse)
	}

	// Rejection does not move the patient forward.
	f.pipeline.mu.Lock()
	defer f.pipeline.mu.Unlock()
	if len(f.pipeline.calls) != 0 {
		t.Fatalf("pipeline calls = %v", f.pipeline.calls)
	}
}

func TestVerifySignature_SurvivesFollowUps(t *testing.T) {
	f := newFixture(t)
	r := f.createSigned(t)

	if _, err := f.svc.Submit(context.Background(), f.orgID, r.ID, f.adminID, "ANV-2024-00911", "203.0.113.4"); err != nil {
		t.Fatal(err)
	}

	valid, err := f.svc.VerifySignature(context.Background(), f.orgID, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Fatal("signature invalidated by a status follow-up")
	}

	t.Run("survives a license correction", func(t *testing.T) {
		f.licenses.set(signing.License{Number: "778899", State: "PR"})
		valid, err := f.svc.VerifySignature(context.Background(), f.orgID, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !valid {
			t.Fatal("untampered signature failed verification after a license update")
		}
	})
}

func TestSign_ConcurrentExclusivity(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, map[string]any{"patient_consent": true})

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Sign(context.Background(), f.orgID, r.ID, f.doctorID, "198.51.100.9")
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
			t.Fatalf("loser got kind %v", apperr.KindOf(err))
		}
	}
	if wins != 1 {
		t.Fatalf("%d concurrent signs succeeded, want exactly 1", wins)
	}
}
