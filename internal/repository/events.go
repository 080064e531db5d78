package repository

import (
	"fmt"
	"sort"
	"time"

	"formate/pkg/schema"
)

// Event maps are the on-disk form of transcript events. Every map carries
// event_type, event_id and timestamp plus the fields of its event type.

// eventToMap flattens a transcript event for YAML storage.
func eventToMap(event schema.TranscriptEvent) (map[string]interface{}, error) {
	m := map[string]interface{}{
		"event_type": event.EventType(),
		"event_id":   event.EventID(),
		"timestamp":  event.Timestamp().UTC().Format(time.RFC3339Nano),
	}

	switch e := event.(type) {
	case *schema.ConversationStarted:
		m["conversation_id"] = e.ConversationID
		m["plan_id"] = e.PlanID
	case *schema.AnswerRecorded:
		m["field_id"] = e.FieldID
		m["answer"] = e.Answer.Interface()
	case *schema.ConversationEnded:
		m["reason"] = e.Reason
	default:
		return nil, fmt.Errorf("unknown event type: %T", event)
	}
	return m, nil
}

// mapToEvent rebuilds a transcript event from its stored map.
func mapToEvent(eventMap map[string]interface{}) (schema.TranscriptEvent, error) {
	eventType, _ := eventMap["event_type"].(string)
	eventID, _ := eventMap["event_id"].(string)
	timestamp, err := timeOf(eventMap["timestamp"])
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", eventID, err)
	}

	switch eventType {
	case "ConversationStarted":
		convID, _ := eventMap["conversation_id"].(string)
		planID, _ := eventMap["plan_id"].(string)
		return &schema.ConversationStarted{
			EventID_:       eventID,
			ConversationID: convID,
			PlanID:         planID,
			Timestamp_:     timestamp,
		}, nil

	case "AnswerRecorded":
		fieldID, _ := eventMap["field_id"].(string)
		answer, err := schema.ParseStoredAnswer(eventMap["answer"])
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", eventID, err)
		}
		return &schema.AnswerRecorded{
			EventID_:   eventID,
			FieldID:    fieldID,
			Answer:     answer,
			Timestamp_: timestamp,
		}, nil

	case "ConversationEnded":
		reason, _ := eventMap["reason"].(string)
		return &schema.ConversationEnded{
			EventID_:   eventID,
			Reason:     reason,
			Timestamp_: timestamp,
		}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// timeOf accepts both decoded forms of a stored timestamp. yaml.v3 hands
// timestamps to interface{} targets as strings.
func timeOf(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
}

// ReplayEventsFromMaps rebuilds a transcript from stored event maps. Events
// are replayed in timestamp order; events sharing a timestamp keep their
// stored order. Later answers to a field replace earlier ones while the
// field keeps its original position.
func ReplayEventsFromMaps(eventMaps []map[string]interface{}) (*schema.Transcript, error) {
	events := make([]schema.TranscriptEvent, 0, len(eventMaps))
	for i, m := range eventMaps {
		event, err := mapToEvent(m)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, event)
	}
	return ReplayEvents(events)
}

// ReplayEvents folds events into a fresh transcript.
func ReplayEvents(events []schema.TranscriptEvent) (*schema.Transcript, error) {
	sorted := make([]schema.TranscriptEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp().Before(sorted[j].Timestamp())
	})

	tr := schema.NewTranscript()
	for _, event := range sorted {
		if err := tr.Apply(event); err != nil {
			return nil, fmt.Errorf("apply %s %s: %w", event.EventType(), event.EventID(), err)
		}
	}
	return tr, nil
}
