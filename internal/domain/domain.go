package domain

// User is a registered quiz player. Created on REGISTER and never mutated
// afterwards. Usernames are unique across all users.
type User struct {
	ID           string
	Username     string
	PasswordHash string
}

// Question is a quiz question. The ID is supplied by the client that adds it
// and the question is immutable once stored. CreatedBy is checked at answer
// time so the author never scores on their own question.
type Question struct {
	ID        string
	Text      string
	Answer    string
	CreatedBy string
}

// LeaderboardEntry is one row of the aggregated leaderboard: the sum of a
// user's correct-answer increments. Users with no correct answers have no
// entry.
type LeaderboardEntry struct {
	Username string
	Total    int64
}
