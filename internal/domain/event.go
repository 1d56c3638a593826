package domain

const (
	EventNameQuizGenerated      = "quiz.generated"
	EventNameSessionFinished    = "session.finished"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventQuizGenerated struct {
	Quiz      Quiz
	Questions int
}

func (EventQuizGenerated) Name() string { return EventNameQuizGenerated }

type EventSessionFinished struct {
	Result Result
}

func (EventSessionFinished) Name() string { return EventNameSessionFinished }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
