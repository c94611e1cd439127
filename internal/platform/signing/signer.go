package signing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/audit"
	"github.com/clinika/clinika/internal/platform/crypto"
	"github.com/clinika/clinika/internal/platform/metrics"
)

// License identifies the signing doctor's professional registration.
type License struct {
	Number string `json:"number"`
	State  string `json:"state"`
}

// Payload is the canonical signature payload. It must be built from the
// content exactly as stored at the moment of signing, so a later
// reconstruction with the same timestamp reproduces the identical hash.
type Payload struct {
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	PatientID  uuid.UUID      `json:"patient_id"`
	DoctorID   uuid.UUID      `json:"doctor_id"`
	License    License        `json:"license"`
	Content    map[string]any `json:"content"`
}

// Signature is the result of sealing a payload. License is the signing
// doctor's registration exactly as it entered the hash; callers persist it
// with the hash so verification never depends on the live doctor profile.
type Signature struct {
	Hash     string
	SignedAt time.Time
	SignedIP string
	License  License
}

// Signer seals document payloads and writes the matching audit entry. The
// audit write joins the caller's transaction, so a signature never commits
// without its audit trail.
type Signer struct {
	engine   *crypto.Engine
	recorder audit.Recorder
	metrics  *metrics.Metrics
	clock    func() time.Time
}

type SignerOption func(*Signer)

func WithClock(clock func() time.Time) SignerOption {
	return func(s *Signer) { s.clock = clock }
}

func WithMetrics(m *metrics.Metrics) SignerOption {
	return func(s *Signer) { s.metrics = m }
}

func NewSigner(engine *crypto.Engine, recorder audit.Recorder, opts ...SignerOption) *Signer {
	s := &Signer{engine: engine, recorder: recorder, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seal stamps the server clock and computes the signature hash over the
// payload and that timestamp.
func (s *Signer) Seal(payload Payload, callerIP string) (Signature, error) {
	signedAt := s.clock().UTC().Truncate(time.Second)
	hash, err := s.engine.SignatureHash(payload, signedAt)
	if err != nil {
		if s.metrics != nil {
			s.metrics.CryptoFailures.WithLabelValues("signature_hash").Inc()
		}
		return Signature{}, err
	}
	return Signature{Hash: hash, SignedAt: signedAt, SignedIP: callerIP, License: payload.License}, nil
}

// MarkSigned counts a signature whose status flip committed. Services call
// it after the transaction, so a lost CAS race or a rollback is not counted.
func (s *Signer) MarkSigned(entityType string) {
	if s.metrics != nil {
		s.metrics.DocumentsSigned.WithLabelValues(entityType).Inc()
	}
}

// Verify recomputes the hash for payload at sig.SignedAt and compares in
// constant time.
func (s *Signer) Verify(payload Payload, sig Signature) (bool, error) {
	return s.engine.VerifySignatureHash(payload, sig.SignedAt, sig.Hash)
}

// Audit appends the pipeline's audit entry. Callers invoke it inside the
// same transaction that persists the document mutation.
func (s *Signer) Audit(ctx context.Context, actorID uuid.UUID, action, entityType string, entityID uuid.UUID, ip string, meta map[string]any) error {
	return s.recorder.Record(ctx, &audit.Entry{
		ActorUserID: actorID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Metadata:    meta,
		IPAddress:   ip,
	})
}
