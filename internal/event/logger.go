package event

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/microai-dao/truststack/internal/signer"
)

// Logger hashes, signs, and persists trust events, and answers point,
// per-agent, and per-date queries over the store.
type Logger struct {
	signer *signer.Signer
	store  Store
	logger *zap.Logger
}

// NewLogger wires a Logger. The signer is the mandatory process signing key;
// key validation happens in signer.New at startup.
func NewLogger(s *signer.Signer, store Store, logger *zap.Logger) *Logger {
	return &Logger{signer: s, store: store, logger: logger}
}

// Options carries the optional fields of a logged event.
type Options struct {
	EPIScore    *float64
	Model       string
	ToolsCalled []string
	Redactions  []string
	Evaluations []Evaluation
}

// LogEvent hashes the raw input/output payloads, builds a TrustEvent with a
// fresh id and current UTC timestamp, signs its canonical encoding, and
// appends it to the date partition matching the event's UTC date. The raw
// payloads are discarded; only their hashes are retained.
func (l *Logger) LogEvent(ctx context.Context, tenantID, agentID, actionType string, input, output []byte, policyVersion string, opts *Options) (*TrustEvent, error) {
	if opts == nil {
		opts = &Options{}
	}

	e := &TrustEvent{
		EventID:       uuid.NewString(),
		Timestamp:     now(),
		TenantID:      tenantID,
		AgentID:       agentID,
		ActionType:    actionType,
		Model:         opts.Model,
		InputHash:     signer.Hash(input),
		OutputHash:    signer.Hash(output),
		PolicyVersion: policyVersion,
		EPIScore:      opts.EPIScore,
		ToolsCalled:   emptyIfNil(opts.ToolsCalled),
		Redactions:    emptyIfNil(opts.Redactions),
		Evaluations:   opts.Evaluations,
	}
	if e.Evaluations == nil {
		e.Evaluations = []Evaluation{}
	}

	payload, err := e.SigningPayload()
	if err != nil {
		return nil, err
	}
	e.Signature = l.signer.Sign(payload)

	if err := l.store.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("event: append: %w", err)
	}

	l.logger.Info("trust event logged",
		zap.String("event_id", e.EventID),
		zap.String("tenant_id", e.TenantID),
		zap.String("agent_id", e.AgentID),
		zap.String("action_type", e.ActionType),
	)
	return e, nil
}

// CreateEvaluation builds a signed evaluation record for embedding in a
// trust event.
func (l *Logger) CreateEvaluation(evaluator, category, result string, confidence float64) Evaluation {
	signedAt := now()
	msg := fmt.Sprintf("%s:%s:%s:%s:%s",
		evaluator, category, result,
		strconv.FormatFloat(confidence, 'g', -1, 64), signedAt,
	)
	return Evaluation{
		Evaluator:  evaluator,
		Category:   category,
		Result:     result,
		Confidence: confidence,
		SignedAt:   signedAt,
		Signature:  l.signer.Sign([]byte(msg)),
	}
}

// GetEvent returns the event with the given id, or ErrNotFound.
func (l *Logger) GetEvent(ctx context.Context, id string) (*TrustEvent, error) {
	return l.store.GetByID(ctx, id)
}

// EventsByDate returns all events of one UTC date in append order.
func (l *Logger) EventsByDate(ctx context.Context, date string) ([]*TrustEvent, error) {
	var events []*TrustEvent
	err := l.store.ScanByDate(ctx, date, func(e *TrustEvent) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// EventsByAgent returns up to limit recent events for one agent, newest
// partitions first. The scan is bounded by available partitions; partitions
// are streamed, not loaded wholesale.
func (l *Logger) EventsByAgent(ctx context.Context, agentID string, limit int) ([]*TrustEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	dates, err := l.store.Dates(ctx)
	if err != nil {
		return nil, err
	}

	var events []*TrustEvent
	for _, date := range dates {
		err := l.store.ScanByDate(ctx, date, func(e *TrustEvent) error {
			if e.AgentID != agentID {
				return nil
			}
			events = append(events, e)
			if len(events) >= limit {
				return ErrStopScan
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(events) >= limit {
			break
		}
	}
	return events, nil
}

// VerifyEvent checks the event's signature against the process signing key.
func (l *Logger) VerifyEvent(e *TrustEvent) bool {
	return Verify(l.signer, e)
}

// LeafHash returns the event's Merkle leaf, sha256(input_hash ++ output_hash).
func LeafHash(e *TrustEvent) string {
	return signer.Hash([]byte(e.InputHash + e.OutputHash))
}

// DailyHashes returns, for each event of the date in append order,
// sha256(input_hash ++ output_hash). These combined hashes, not the events
// themselves, become the leaves of the day's Merkle tree.
func (l *Logger) DailyHashes(ctx context.Context, date string) ([]string, error) {
	var hashes []string
	err := l.store.ScanByDate(ctx, date, func(e *TrustEvent) error {
		hashes = append(hashes, LeafHash(e))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func emptyIfNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}
