// Package storetest provides an in-memory persistence gateway with the same
// serialization discipline as the Postgres store, for tests that do not want
// a database.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/victornm/quizd/internal/domain"
	"github.com/victornm/quizd/internal/errors"
)

type Memory struct {
	mu          sync.Mutex
	unavailable bool

	users     map[string]domain.User // keyed by username
	questions map[string]domain.Question
	scores    map[string]int64 // keyed by user id
	nextID    int
}

func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]domain.User),
		questions: make(map[string]domain.Question),
		scores:    make(map[string]int64),
	}
}

// SetUnavailable makes every subsequent operation fail as a store outage.
func (m *Memory) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = down
}

func (m *Memory) CreateUser(_ context.Context, username, passwordHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return "", errDown()
	}

	if _, ok := m.users[username]; ok {
		return "", errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("username %q already taken", username))
	}

	m.nextID++
	u := domain.User{
		ID:           fmt.Sprintf("u-%d", m.nextID),
		Username:     username,
		PasswordHash: passwordHash,
	}
	m.users[username] = u

	return u.ID, nil
}

func (m *Memory) FindUserByCredentials(_ context.Context, username, passwordHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return "", errDown()
	}

	u, ok := m.users[username]
	if !ok || u.PasswordHash != passwordHash {
		return "", errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("no user matching credentials for %q", username))
	}

	return u.ID, nil
}

func (m *Memory) CreateQuestion(_ context.Context, q domain.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return errDown()
	}

	if _, ok := m.questions[q.ID]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("question %q already exists", q.ID))
	}

	m.questions[q.ID] = q
	return nil
}

func (m *Memory) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return domain.Question{}, errDown()
	}

	q, ok := m.questions[id]
	if !ok {
		return domain.Question{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question %q not found", id))
	}

	return q, nil
}

func (m *Memory) IncrementScore(_ context.Context, userID string) (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return "", 0, errDown()
	}

	m.scores[userID]++

	var username string
	for _, u := range m.users {
		if u.ID == userID {
			username = u.Username
			break
		}
	}

	return username, m.scores[userID], nil
}

func (m *Memory) LeaderboardTotals(_ context.Context) ([]domain.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return nil, errDown()
	}

	var entries []domain.LeaderboardEntry
	for _, u := range m.users {
		if total, ok := m.scores[u.ID]; ok {
			entries = append(entries, domain.LeaderboardEntry{Username: u.Username, Total: total})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Total != entries[j].Total {
			return entries[i].Total > entries[j].Total
		}
		return entries[i].Username < entries[j].Username
	})

	return entries, nil
}

func errDown() error {
	return errors.Unavailable(fmt.Errorf("store is down"))
}
