package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// Appender persists one event row. Implemented by the case store; the
// indirection keeps this package free of database concerns.
type Appender interface {
	AppendEvent(ctx context.Context, sessionID string, bucket Bucket, payload []byte) error
}

// Sink is the single progress outlet handed down through the pipeline.
// Components report, they never read back.
type Sink interface {
	Process(ctx context.Context, phase Phase, status Status, message string, data map[string]any)
	Thinking(ctx context.Context, phase Phase, message string, metadata map[string]any)
	Output(ctx context.Context, payload map[string]any)
}

// Emitter writes session events through an Appender. Emission failures are
// logged and swallowed; a broken event log must never abort a turn.
type Emitter struct {
	appender  Appender
	sessionID string
	now       func() time.Time
}

func NewEmitter(appender Appender, sessionID string) *Emitter {
	return &Emitter{appender: appender, sessionID: sessionID, now: time.Now}
}

// WithClock pins the emitter's clock, used by tests for stable timestamps.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	e.now = now
	return e
}

func (e *Emitter) Process(ctx context.Context, phase Phase, status Status, message string, data map[string]any) {
	e.append(ctx, BucketProcess, Payload{
		Phase:     phase,
		Status:    status,
		Message:   message,
		Timestamp: e.timestamp(),
		Data:      data,
	})
}

func (e *Emitter) Thinking(ctx context.Context, phase Phase, message string, metadata map[string]any) {
	e.append(ctx, BucketThinking, Payload{
		Phase:     phase,
		Message:   message,
		Timestamp: e.timestamp(),
		Metadata:  metadata,
	})
}

func (e *Emitter) Output(ctx context.Context, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal output event")
		return
	}
	e.write(ctx, BucketOutput, raw)
}

func (e *Emitter) append(ctx context.Context, bucket Bucket, p Payload) {
	raw, err := json.Marshal(p)
	if err != nil {
		log.Warn().Err(err).Str("bucket", string(bucket)).Msg("Failed to marshal event payload")
		return
	}
	e.write(ctx, bucket, raw)
}

func (e *Emitter) write(ctx context.Context, bucket Bucket, raw []byte) {
	if err := e.appender.AppendEvent(ctx, e.sessionID, bucket, raw); err != nil {
		log.Warn().Err(err).
			Str("session_id", e.sessionID).
			Str("bucket", string(bucket)).
			Msg("Failed to append event")
	}
}

func (e *Emitter) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// NopSink discards everything. Useful where a turn runs without a session,
// and in tests that do not assert on events.
type NopSink struct{}

func (NopSink) Process(context.Context, Phase, Status, string, map[string]any) {}
func (NopSink) Thinking(context.Context, Phase, string, map[string]any)        {}
func (NopSink) Output(context.Context, map[string]any)                         {}
