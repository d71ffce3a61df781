package telemetry

import "time"

type EventType string

const (
	EventWelcomeViewed     EventType = "welcome_viewed"
	EventAgentRegistered   EventType = "agent_registered"
	EventPageMounted       EventType = "page_mounted"
	EventFlagSubmitted     EventType = "flag_submitted"
	EventFlagAccepted      EventType = "flag_accepted"
	EventFlagRejected      EventType = "flag_rejected"
	EventFlagInvalid       EventType = "flag_invalid"
	EventMissionCompleted  EventType = "mission_completed"
	EventBriefingCompleted EventType = "briefing_completed"
)

type Event struct {
	ID        int       `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  string    `json:"metadata"`
}

type EventMetadata map[string]interface{}
