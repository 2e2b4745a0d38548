package eventlog

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// ThinkingEvent is one decoded fine-grained progress message.
type ThinkingEvent struct {
	ID        int64          `json:"id"`
	Phase     Phase          `json:"phase"`
	Message   string         `json:"message,omitempty"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ProcessEvent is one decoded phase marker with the thinking events of its
// phase attached.
type ProcessEvent struct {
	ID        int64           `json:"id"`
	Phase     Phase           `json:"phase"`
	Status    Status          `json:"status,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp string          `json:"timestamp"`
	Data      map[string]any  `json:"data,omitempty"`
	Thinking  []ThinkingEvent `json:"thinking,omitempty"`
}

// GroupForDisplay builds the process view from a session's raw records.
//
// Process events keep their insertion order. Every thinking event of a phase
// attaches to the latest process event of that phase, so a re-run phase pulls
// the whole history of its thinking forward. Thinking whose phase never got a
// process marker lands in trailing groups; OUTPUT records are not part of the
// view.
func GroupForDisplay(records []Record) []ProcessEvent {
	var (
		ordered         []*ProcessEvent
		latest          = make(map[Phase]*ProcessEvent)
		thinkingByPhase = make(map[Phase][]ThinkingEvent)
		phaseOrder      []Phase
	)

	for _, r := range records {
		switch r.Bucket {
		case BucketProcess:
			p, ok := decodePayload(r)
			if !ok {
				continue
			}
			ev := &ProcessEvent{
				ID:        r.ID,
				Phase:     p.Phase,
				Status:    p.Status,
				Message:   p.Message,
				Timestamp: p.Timestamp,
				Data:      p.Data,
			}
			ordered = append(ordered, ev)
			latest[p.Phase] = ev
		case BucketThinking:
			p, ok := decodePayload(r)
			if !ok {
				continue
			}
			if _, seen := thinkingByPhase[p.Phase]; !seen {
				phaseOrder = append(phaseOrder, p.Phase)
			}
			thinkingByPhase[p.Phase] = append(thinkingByPhase[p.Phase], ThinkingEvent{
				ID:        r.ID,
				Phase:     p.Phase,
				Message:   p.Message,
				Timestamp: p.Timestamp,
				Metadata:  p.Metadata,
			})
		}
	}

	for _, phase := range phaseOrder {
		if ev, ok := latest[phase]; ok {
			ev.Thinking = thinkingByPhase[phase]
		}
	}

	out := make([]ProcessEvent, 0, len(ordered))
	for _, ev := range ordered {
		out = append(out, *ev)
	}
	for _, phase := range phaseOrder {
		if _, ok := latest[phase]; !ok {
			out = append(out, ProcessEvent{Phase: phase, Thinking: thinkingByPhase[phase]})
		}
	}
	return out
}

func decodePayload(r Record) (Payload, bool) {
	var p Payload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		log.Warn().Err(err).Int64("event_id", r.ID).Msg("Skipping undecodable event payload")
		return Payload{}, false
	}
	return p, true
}
