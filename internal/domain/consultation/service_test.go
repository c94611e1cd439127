package consultation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/apperr"
)

type mockRepo struct {
	store map[uuid.UUID]*Consultation
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[uuid.UUID]*Consultation)}
}

func (m *mockRepo) Create(_ context.Context, c *Consultation) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.store[c.ID] = c
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, orgID, id uuid.UUID) (*Consultation, error) {
	c, ok := m.store[id]
	if !ok || c.OrganizationID != orgID {
		return nil, nil
	}
	return c, nil
}

func (m *mockRepo) List(_ context.Context, orgID uuid.UUID, _, _ int) ([]*Consultation, int, error) {
	var out []*Consultation
	for _, c := range m.store {
		if c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, orgID, patientID uuid.UUID, _, _ int) ([]*Consultation, int, error) {
	var out []*Consultation
	for _, c := range m.store {
		if c.OrganizationID == orgID && c.PatientID == patientID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByDoctorBetween(_ context.Context, orgID, doctorID uuid.UUID, from, to time.Time) ([]*Consultation, error) {
	var out []*Consultation
	for _, c := range m.store {
		if c.OrganizationID == orgID && c.DoctorID == doctorID &&
			!c.ScheduledAt.Before(from) && c.ScheduledAt.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, orgID, id uuid.UUID, from, to string) (bool, error) {
	c, ok := m.store[id]
	if !ok || c.OrganizationID != orgID || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

type allowAll struct{}

func (allowAll) Exists(context.Context, uuid.UUID, uuid.UUID) (bool, error) { return true, nil }

type denyAll struct{}

func (denyAll) Exists(context.Context, uuid.UUID, uuid.UUID) (bool, error) { return false, nil }

func schedule(t *testing.T, svc *Service, orgID uuid.UUID) *Consultation {
	t.Helper()
	c := &Consultation{
		OrganizationID: orgID,
		PatientID:      uuid.New(),
		DoctorID:       uuid.New(),
		ScheduledAt:    time.Now().Add(24 * time.Hour),
	}
	if err := svc.Schedule(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSchedule(t *testing.T) {
	svc := NewService(newMockRepo(), allowAll{}, allowAll{})
	c := schedule(t, svc, uuid.New())
	if c.Status != StatusScheduled {
		t.Fatalf("status = %s", c.Status)
	}

	t.Run("unknown patient", func(t *testing.T) {
		svc := NewService(newMockRepo(), denyAll{}, allowAll{})
		err := svc.Schedule(context.Background(), &Consultation{
			OrganizationID: uuid.New(), PatientID: uuid.New(), DoctorID: uuid.New(),
			ScheduledAt: time.Now(),
		})
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})
}

func TestTransition_HappyPath(t *testing.T) {
	svc := NewService(newMockRepo(), allowAll{}, allowAll{})
	orgID := uuid.New()
	c := schedule(t, svc, orgID)

	for _, to := range []string{StatusConfirmed, StatusWaiting, StatusInProgress, StatusCompleted} {
		got, err := svc.Transition(context.Background(), orgID, c.ID, to)
		if err != nil {
			t.Fatalf("to %s: %v", to, err)
		}
		if got.Status != to {
			t.Fatalf("status = %s, want %s", got.Status, to)
		}
	}
}

func TestTransition_InvalidNamesPair(t *testing.T) {
	svc := NewService(newMockRepo(), allowAll{}, allowAll{})
	orgID := uuid.New()
	c := schedule(t, svc, orgID)

	_, err := svc.Transition(context.Background(), orgID, c.ID, StatusCompleted)
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("kind = %v", apperr.KindOf(err))
	}
	msg := err.Error()
	if !strings.Contains(msg, StatusScheduled) || !strings.Contains(msg, StatusCompleted) {
		t.Fatalf("error %q should name both statuses", msg)
	}
}

func TestTransition_CancelAndNoShow(t *testing.T) {
	svc := NewService(newMockRepo(), allowAll{}, allowAll{})
	orgID := uuid.New()

	// Reachable from every non-terminal status.
	path := [][]string{
		{},
		{StatusConfirmed},
		{StatusConfirmed, StatusWaiting},
		{StatusConfirmed, StatusWaiting, StatusInProgress},
	}
	for _, exit := range []string{StatusCanceled, StatusNoShow} {
		for _, steps := range path {
			c := schedule(t, svc, orgID)
			for _, to := range steps {
				if _, err := svc.Transition(context.Background(), orgID, c.ID, to); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := svc.Transition(context.Background(), orgID, c.ID, exit); err != nil {
				t.Fatalf("%s after %v: %v", exit, steps, err)
			}
		}
	}

	t.Run("terminal statuses are final", func(t *testing.T) {
		c := schedule(t, svc, orgID)
		if _, err := svc.Transition(context.Background(), orgID, c.ID, StatusCanceled); err != nil {
			t.Fatal(err)
		}
		_, err := svc.Transition(context.Background(), orgID, c.ID, StatusConfirmed)
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v, want BadRequest leaving CANCELED", apperr.KindOf(err))
		}
	})
}

func TestTransition_TenantScoped(t *testing.T) {
	svc := NewService(newMockRepo(), allowAll{}, allowAll{})
	c := schedule(t, svc, uuid.New())

	_, err := svc.Transition(context.Background(), uuid.New(), c.ID, StatusConfirmed)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("kind = %v", apperr.KindOf(err))
	}
}

func TestAgenda(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, allowAll{}, allowAll{})
	orgID := uuid.New()
	doctorID := uuid.New()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{9 * time.Hour, 14 * time.Hour, 30 * time.Hour} {
		c := &Consultation{
			OrganizationID: orgID,
			PatientID:      uuid.New(),
			DoctorID:       doctorID,
			ScheduledAt:    day.Add(offset),
		}
		if err := svc.Schedule(context.Background(), c); err != nil {
			t.Fatal(err)
		}
	}

	items, err := svc.Agenda(context.Background(), orgID, doctorID, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("agenda has %d items, want 2 inside the day", len(items))
	}

	t.Run("inverted window", func(t *testing.T) {
		_, err := svc.Agenda(context.Background(), orgID, doctorID, day, day.Add(-time.Hour))
		if !apperr.Is(err, apperr.KindBadRequest) {
			t.Fatalf("kind = %v", apperr.KindOf(err))
		}
	})
}
