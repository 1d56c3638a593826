package domain

import "time"

// Quiz is a stored, validated quiz that sessions can be started from.
type Quiz struct {
	QuizID     string
	Source     string
	CreateTime time.Time
}

// Result is the archived outcome of a finished, named session.
type Result struct {
	SessionID  string
	QuizID     string
	Username   string
	Score      int
	Total      int
	Percentage int
	Tier       string
	History    []Answer
	FinishTime time.Time
}

// Answer is one line of a result's answer log.
type Answer struct {
	Question string `json:"question"`
	Correct  bool   `json:"correct"`
}

// Leaderboard lists the best percentage of every user who finished a quiz, sorted in
// descending order.
type Leaderboard struct {
	QuizID  string
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	Username   string
	Percentage float64
}
