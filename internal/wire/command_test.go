package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizd/internal/wire"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		payload string
		want    wire.Command
	}{
		"register": {
			payload: "REGISTER alice pw1",
			want:    wire.Register{Username: "alice", Password: "pw1"},
		},
		"login": {
			payload: "LOGIN alice pw1",
			want:    wire.Login{Username: "alice", Password: "pw1"},
		},
		"add question with quoted fields": {
			payload: "ADD_QUESTION 7 1 'Capital of France?' 'Paris'",
			want: wire.AddQuestion{
				UserID:     "7",
				QuestionID: "1",
				Text:       "Capital of France?",
				Answer:     "Paris",
			},
		},
		"add question single word fields still need quotes stripped": {
			payload: "ADD_QUESTION 7 2 'Two' 'Deux'",
			want:    wire.AddQuestion{UserID: "7", QuestionID: "2", Text: "Two", Answer: "Deux"},
		},
		"answer": {
			payload: "ANSWER 8 1 'paris'",
			want:    wire.Answer{UserID: "8", QuestionID: "1", Text: "paris"},
		},
		"answer keeps inner spaces": {
			payload: "ANSWER 8 1 ' the answer '",
			want:    wire.Answer{UserID: "8", QuestionID: "1", Text: " the answer "},
		},
		"apostrophe inside a bare word is literal": {
			payload: "REGISTER o'brien pw1",
			want:    wire.Register{Username: "o'brien", Password: "pw1"},
		},
		"leaderboard": {
			payload: "LEADERBOARD",
			want:    wire.Leaderboard{},
		},
		"disconnect sentinel": {
			payload: "Disconnected",
			want:    wire.Disconnect{},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := wire.ParseCommand(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_Invalid(t *testing.T) {
	t.Parallel()

	payloads := map[string]string{
		"unknown keyword":          "DELETE_QUESTION 1",
		"empty payload":            "",
		"register missing arg":     "REGISTER alice",
		"register extra arg":       "REGISTER alice pw1 pw2",
		"login no args":            "LOGIN",
		"answer missing text":      "ANSWER 8 1",
		"leaderboard with args":    "LEADERBOARD now",
		"unterminated quote":       "ANSWER 8 1 'paris",
		"adjacent quoted fields":   "ANSWER 8 1 'a''b'",
		"text after closing quote": "ANSWER 8 1 'paris'x",
		"lowercase keyword":        "register alice pw1",
		"sentinel with extra text": "Disconnected now",
	}

	for name, payload := range payloads {
		payload := payload
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := wire.ParseCommand(payload)
			assert.ErrorIs(t, err, wire.ErrInvalidCommand)
		})
	}
}
