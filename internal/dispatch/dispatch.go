// Package dispatch executes parsed commands against the persistence gateway
// and renders the reply text for the wire protocol. Domain failures never
// tear the session down: they become reply strings.
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/victornm/quizd/internal/domain"
	"github.com/victornm/quizd/internal/errors"
	"github.com/victornm/quizd/internal/event"
	"github.com/victornm/quizd/internal/telemetry"
	"github.com/victornm/quizd/internal/wire"
)

// Reply strings are part of the wire protocol: existing clients match on
// them verbatim.
const (
	replyInvalidCommand   = "Invalid command"
	replyRegistered       = "User registered successfully"
	replyUsernameTaken    = "Username already taken"
	replyLoginFailed      = "Invalid username or password"
	replyQuestionAdded    = "Question added successfully"
	replyQuestionExists   = "Question already exists"
	replyQuestionNotFound = "Question not found"
	replyCorrect          = "Correct answer!"
	replyIncorrect        = "Incorrect answer"
	replyOwnQuestion      = "You cannot answer your own question"
	replyUnavailable      = "Service unavailable"
)

// Gateway is the persistence store as seen by the dispatcher. All
// implementations serialize their operations internally.
type Gateway interface {
	CreateUser(ctx context.Context, username, passwordHash string) (userID string, err error)
	FindUserByCredentials(ctx context.Context, username, passwordHash string) (userID string, err error)
	CreateQuestion(ctx context.Context, q domain.Question) error
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	IncrementScore(ctx context.Context, userID string) (username string, total int64, err error)
	LeaderboardTotals(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// Standings serves leaderboard reads, usually from a cache in front of the
// gateway.
type Standings interface {
	Totals(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

type Config struct {
	Gateway  Gateway
	EventBus *event.Bus

	// Standings is optional; when nil, LEADERBOARD reads go straight to the
	// gateway.
	Standings Standings
}

type Dispatcher struct {
	gw        Gateway
	eb        *event.Bus
	standings Standings
}

func New(c Config) *Dispatcher {
	return &Dispatcher{
		gw:        c.Gateway,
		eb:        c.EventBus,
		standings: c.Standings,
	}
}

// Result is the outcome of one dispatched payload.
type Result struct {
	Reply string

	// Disconnect marks the session for termination after the reply is sent.
	Disconnect bool

	// LoginUserID is set on a successful LOGIN so the session can record
	// its authenticated identity.
	LoginUserID string
}

// Dispatch parses and executes one request payload. It always produces
// exactly one reply.
func (d *Dispatcher) Dispatch(ctx context.Context, payload string) Result {
	cmd, err := wire.ParseCommand(payload)
	if err != nil {
		slog.DebugContext(ctx, "dispatch: parse failed", "error", err)
		telemetry.CommandProcessed("invalid", "rejected")
		return Result{Reply: replyInvalidCommand}
	}

	res := d.execute(ctx, cmd)
	telemetry.CommandProcessed(commandName(cmd), outcome(res))
	return res
}

func (d *Dispatcher) execute(ctx context.Context, cmd wire.Command) Result {
	switch c := cmd.(type) {
	case wire.Register:
		return d.register(ctx, c)
	case wire.Login:
		return d.login(ctx, c)
	case wire.AddQuestion:
		return d.addQuestion(ctx, c)
	case wire.Answer:
		return d.answer(ctx, c)
	case wire.Leaderboard:
		return d.leaderboard(ctx)
	case wire.Disconnect:
		return Result{Reply: wire.DisconnectSentinel, Disconnect: true}
	}

	return Result{Reply: replyInvalidCommand}
}

func (d *Dispatcher) register(ctx context.Context, c wire.Register) Result {
	_, err := d.gw.CreateUser(ctx, c.Username, hashPassword(c.Password))
	if err != nil {
		return Result{Reply: replyForError(ctx, err, map[errors.Code]string{
			errors.CodeAlreadyExists: replyUsernameTaken,
		})}
	}

	return Result{Reply: replyRegistered}
}

func (d *Dispatcher) login(ctx context.Context, c wire.Login) Result {
	id, err := d.gw.FindUserByCredentials(ctx, c.Username, hashPassword(c.Password))
	if err != nil {
		return Result{Reply: replyForError(ctx, err, map[errors.Code]string{
			errors.CodeUnauthenticated: replyLoginFailed,
		})}
	}

	return Result{
		Reply:       fmt.Sprintf("Login successful %s", id),
		LoginUserID: id,
	}
}

func (d *Dispatcher) addQuestion(ctx context.Context, c wire.AddQuestion) Result {
	err := d.gw.CreateQuestion(ctx, domain.Question{
		ID:        c.QuestionID,
		Text:      c.Text,
		Answer:    c.Answer,
		CreatedBy: c.UserID,
	})
	if err != nil {
		return Result{Reply: replyForError(ctx, err, map[errors.Code]string{
			errors.CodeAlreadyExists: replyQuestionExists,
		})}
	}

	return Result{Reply: replyQuestionAdded}
}

func (d *Dispatcher) answer(ctx context.Context, c wire.Answer) Result {
	q, err := d.gw.GetQuestion(ctx, c.QuestionID)
	if err != nil {
		return Result{Reply: replyForError(ctx, err, map[errors.Code]string{
			errors.CodeNotFound: replyQuestionNotFound,
		})}
	}

	if c.UserID == q.CreatedBy {
		return Result{Reply: replyOwnQuestion}
	}

	if !answersMatch(q.Answer, c.Text) {
		return Result{Reply: replyIncorrect}
	}

	username, total, err := d.gw.IncrementScore(ctx, c.UserID)
	if err != nil {
		return Result{Reply: replyForError(ctx, err, nil)}
	}

	d.eb.Publish(ctx, domain.EventScoreUpdated{
		UserID:   c.UserID,
		Username: username,
		Total:    total,
	})

	return Result{Reply: replyCorrect}
}

func (d *Dispatcher) leaderboard(ctx context.Context) Result {
	entries, err := d.totals(ctx)
	if err != nil {
		return Result{Reply: replyForError(ctx, err, nil)}
	}

	rows := make([]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, fmt.Sprintf("%s: %d", e.Username, e.Total))
	}

	return Result{Reply: strings.Join(rows, "\n")}
}

func (d *Dispatcher) totals(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	if d.standings != nil {
		return d.standings.Totals(ctx)
	}

	return d.gw.LeaderboardTotals(ctx)
}

// answersMatch compares answer text ignoring case and surrounding
// whitespace.
func answersMatch(want, got string) bool {
	return strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(got))
}

// hashPassword is an unsalted SHA-256 hex digest. Weak, but it is the hash
// existing rows were written with, so changing it would lock every user out.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// replyForError converts a gateway error to a reply string: explicit
// per-code replies first, then the generic text for the code. A store
// outage degrades to a per-request failure reply.
func replyForError(ctx context.Context, err error, replies map[errors.Code]string) string {
	e := errors.Convert(err)

	if e.Code == errors.CodeUnavailable || e.Code == errors.CodeInternal {
		slog.ErrorContext(ctx, "dispatch: gateway failed", "error", err)
		return replyUnavailable
	}

	if r, ok := replies[e.Code]; ok {
		return r
	}

	return e.Reply()
}

func commandName(cmd wire.Command) string {
	switch cmd.(type) {
	case wire.Register:
		return "register"
	case wire.Login:
		return "login"
	case wire.AddQuestion:
		return "add_question"
	case wire.Answer:
		return "answer"
	case wire.Leaderboard:
		return "leaderboard"
	case wire.Disconnect:
		return "disconnect"
	}
	return "unknown"
}

func outcome(res Result) string {
	switch res.Reply {
	case replyUnavailable:
		return "unavailable"
	case replyInvalidCommand, replyUsernameTaken, replyLoginFailed,
		replyQuestionExists, replyQuestionNotFound, replyIncorrect, replyOwnQuestion:
		return "rejected"
	}
	return "ok"
}
