package wire

import (
	"errors"
	"fmt"
	"strings"
)

// DisconnectSentinel is the fixed payload a client sends to end its session.
// The server echoes it back and both sides close.
const DisconnectSentinel = "Disconnected"

// ErrInvalidCommand reports an unknown keyword, wrong argument count, or
// malformed quoting. It is reported to the client as text; the session
// stays open.
var ErrInvalidCommand = errors.New("wire: invalid command")

// Command is a parsed request payload.
type Command interface {
	isCommand()
}

type (
	// Register creates a new user account.
	Register struct {
		Username string
		Password string
	}

	// Login authenticates a user and returns their id.
	Login struct {
		Username string
		Password string
	}

	// AddQuestion stores a new question under a caller-supplied id.
	AddQuestion struct {
		UserID     string
		QuestionID string
		Text       string
		Answer     string
	}

	// Answer submits an answer attempt for a question.
	Answer struct {
		UserID     string
		QuestionID string
		Text       string
	}

	// Leaderboard requests the aggregated standings.
	Leaderboard struct{}

	// Disconnect asks the server to terminate the session.
	Disconnect struct{}
)

func (Register) isCommand()    {}
func (Login) isCommand()       {}
func (AddQuestion) isCommand() {}
func (Answer) isCommand()      {}
func (Leaderboard) isCommand() {}
func (Disconnect) isCommand()  {}

// ParseCommand parses a decoded payload into a Command. Multi-word fields
// (question text, answers) are delimited by single quotes.
func ParseCommand(payload string) (Command, error) {
	if payload == DisconnectSentinel {
		return Disconnect{}, nil
	}

	fields, err := tokenize(payload)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidCommand)
	}

	keyword, args := fields[0], fields[1:]

	switch keyword {
	case "REGISTER":
		if len(args) != 2 {
			return nil, arityErr(keyword, 2, len(args))
		}
		return Register{Username: args[0], Password: args[1]}, nil

	case "LOGIN":
		if len(args) != 2 {
			return nil, arityErr(keyword, 2, len(args))
		}
		return Login{Username: args[0], Password: args[1]}, nil

	case "ADD_QUESTION":
		if len(args) != 4 {
			return nil, arityErr(keyword, 4, len(args))
		}
		return AddQuestion{UserID: args[0], QuestionID: args[1], Text: args[2], Answer: args[3]}, nil

	case "ANSWER":
		if len(args) != 3 {
			return nil, arityErr(keyword, 3, len(args))
		}
		return Answer{UserID: args[0], QuestionID: args[1], Text: args[2]}, nil

	case "LEADERBOARD":
		if len(args) != 0 {
			return nil, arityErr(keyword, 0, len(args))
		}
		return Leaderboard{}, nil
	}

	return nil, fmt.Errorf("%w: unknown keyword %q", ErrInvalidCommand, keyword)
}

func arityErr(keyword string, want, got int) error {
	return fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidCommand, keyword, want, got)
}

// tokenize splits a payload into fields on spaces. A field opening with a
// single quote runs to the closing quote and may contain spaces; the quotes
// are stripped and the field must end there (a closing quote glued to more
// text is a parse error). Quotes inside a bare word are literal: only a
// quote at the start of a field delimits.
func tokenize(s string) ([]string, error) {
	var fields []string

	for i := 0; i < len(s); {
		if s[i] == ' ' {
			i++
			continue
		}

		if s[i] == '\'' {
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated quote", ErrInvalidCommand)
			}
			next := i + end + 2
			if next < len(s) && s[next] != ' ' {
				return nil, fmt.Errorf("%w: missing space after quoted field", ErrInvalidCommand)
			}
			fields = append(fields, s[i+1:i+1+end])
			i = next
			continue
		}

		end := strings.IndexByte(s[i:], ' ')
		if end < 0 {
			fields = append(fields, s[i:])
			break
		}
		fields = append(fields, s[i:i+end])
		i += end
	}

	return fields, nil
}
