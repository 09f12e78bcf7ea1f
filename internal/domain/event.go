package domain

const (
	EventNameScoreUpdated       = "score.updated"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// EventScoreUpdated is published after a correct answer is credited.
type EventScoreUpdated struct {
	UserID   string
	Username string
	Total    int64
}

func (EventScoreUpdated) Name() string { return EventNameScoreUpdated }

// EventLeaderboardUpdated carries a full snapshot of the current standings.
type EventLeaderboardUpdated struct {
	Entries []LeaderboardEntry
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
