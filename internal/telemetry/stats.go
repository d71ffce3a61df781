package telemetry

import (
	"encoding/json"
	"time"
)

// MissionStats aggregates flag activity for one page.
type MissionStats struct {
	Mounts      int     `json:"mounts"`
	Submissions int     `json:"submissions"`
	Accepted    int     `json:"accepted"`
	Rejected    int     `json:"rejected"`
	Invalid     int     `json:"invalid"`
	Completions int     `json:"completions"`
	SolveRate   float64 `json:"solve_rate"`
}

type Stats struct {
	Period          string                   `json:"period"`
	EventCounts     map[EventType]int        `json:"event_counts"`
	Registrations   int                      `json:"registrations"`
	WelcomeViews    int                      `json:"welcome_views"`
	Briefings       int                      `json:"briefings_completed"`
	Missions        map[string]*MissionStats `json:"missions"`
	FurthestMission string                   `json:"furthest_mission,omitempty"`
}

func (s *Stats) mission(id string) *MissionStats {
	m, ok := s.Missions[id]
	if !ok {
		m = &MissionStats{}
		s.Missions[id] = m
	}
	return m
}

// CalculateStats computes funnel stats from events
func CalculateStats(events []Event, since time.Time) (Stats, error) {
	stats := Stats{
		Period:      since.Format("2006-01-02"),
		EventCounts: make(map[EventType]int),
		Missions:    make(map[string]*MissionStats),
	}

	for _, event := range events {
		stats.EventCounts[event.Type]++

		var metadata EventMetadata
		if err := json.Unmarshal([]byte(event.Metadata), &metadata); err != nil {
			continue
		}
		id, _ := metadata["mission"].(string)

		switch event.Type {
		case EventWelcomeViewed:
			stats.WelcomeViews++
		case EventAgentRegistered:
			stats.Registrations++
		case EventBriefingCompleted:
			stats.Briefings++
		case EventPageMounted:
			if id != "" {
				stats.mission(id).Mounts++
			}
		case EventFlagSubmitted:
			if id != "" {
				stats.mission(id).Submissions++
			}
		case EventFlagAccepted:
			if id != "" {
				stats.mission(id).Accepted++
			}
		case EventFlagRejected:
			if id != "" {
				stats.mission(id).Rejected++
			}
		case EventFlagInvalid:
			if id != "" {
				stats.mission(id).Invalid++
			}
		case EventMissionCompleted:
			if id != "" {
				stats.mission(id).Completions++
				if missionNumber(id) > missionNumber(stats.FurthestMission) {
					stats.FurthestMission = id
				}
			}
		}
	}

	for _, m := range stats.Missions {
		if decided := m.Accepted + m.Rejected; decided > 0 {
			m.SolveRate = float64(m.Accepted) / float64(decided)
		}
	}

	return stats, nil
}

func missionNumber(id string) int {
	n := 0
	for _, ch := range id {
		if ch < '0' || ch > '9' {
			return 0
		}
		n = n*10 + int(ch-'0')
	}
	return n
}
