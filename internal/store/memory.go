package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openwrench/openwrench/internal/model"
)

// MemoryStore is the map-backed Store used when no database is configured.
// A single RWMutex guards every bucket; versioned job updates therefore see
// a consistent snapshot and the compare happens under the write lock.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]model.User
	jobs          map[string]model.Job
	conversations map[string]model.Conversation
	messages      map[string]model.Message
	sessions      map[string]model.Session
	codes         map[string]model.VerificationCode
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]model.User),
		jobs:          make(map[string]model.Job),
		conversations: make(map[string]model.Conversation),
		messages:      make(map[string]model.Message),
		sessions:      make(map[string]model.Session),
		codes:         make(map[string]model.VerificationCode),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateUser(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.users {
		if strings.EqualFold(have.Username, u.Username) {
			return model.User{}, ErrUsernameExists
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (s *MemoryStore) UpdateUserPassword(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Password = hash
	s.users[id] = u
	return nil
}

func (s *MemoryStore) CreateJob(_ context.Context, j model.Job) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j = normalizeJobDefaults(j)
	j.ID = uuid.NewString()
	j.CreatedAt = time.Now().UTC()
	j.Version = 1
	s.jobs[j.ID] = j
	return j, nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return j, nil
}

func (s *MemoryStore) GetJobByPaymentLinkToken(_ context.Context, token string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if token != "" && j.PaymentLinkToken == token {
			return j, nil
		}
	}
	return model.Job{}, ErrNotFound
}

func (s *MemoryStore) GetJobByCustomerAccessToken(_ context.Context, token string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if token != "" && j.CustomerAccessToken == token {
			return j, nil
		}
	}
	return model.Job{}, ErrNotFound
}

func (s *MemoryStore) ListJobs(_ context.Context) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sortJobs(out)
	return out, nil
}

func (s *MemoryStore) ListJobsByCustomerEmail(_ context.Context, email string) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Job
	for _, j := range s.jobs {
		if strings.EqualFold(j.CustomerEmail, email) {
			out = append(out, j)
		}
	}
	sortJobs(out)
	return out, nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, id string, upd JobUpdate) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateJobLocked(id, -1, upd)
}

func (s *MemoryStore) UpdateJobVersioned(_ context.Context, id string, version int, upd JobUpdate) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateJobLocked(id, version, upd)
}

// updateJobLocked merges upd into the stored job. version < 0 skips the
// optimistic check. The stored version increments either way so a
// concurrent versioned caller observes the change.
func (s *MemoryStore) updateJobLocked(id string, version int, upd JobUpdate) (model.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	if version >= 0 && j.Version != version {
		return model.Job{}, ErrVersionConflict
	}
	upd.apply(&j)
	j.Version++
	s.jobs[id] = j
	return j, nil
}

func (s *MemoryStore) CreateConversation(_ context.Context, conv model.Conversation) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv.ID = uuid.NewString()
	conv.CreatedAt = time.Now().UTC()
	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return model.Conversation{}, ErrNotFound
	}
	return conv, nil
}

func (s *MemoryStore) GetConversationByJobID(_ context.Context, jobID string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conv := range s.conversations {
		if conv.JobID == jobID {
			return conv, nil
		}
	}
	return model.Conversation{}, ErrNotFound
}

func (s *MemoryStore) ListConversationsByUserID(_ context.Context, userID string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Conversation
	for _, conv := range s.conversations {
		if conv.CustomerID == userID || conv.ProviderID == userID {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, m model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	s.messages[m.ID] = m
	return m, nil
}

func (s *MemoryStore) ListMessagesByConversation(_ context.Context, conversationID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetLastMessageByConversation(ctx context.Context, conversationID string) (model.Message, error) {
	msgs, err := s.ListMessagesByConversation(ctx, conversationID)
	if err != nil {
		return model.Message{}, err
	}
	if len(msgs) == 0 {
		return model.Message{}, ErrNotFound
	}
	return msgs[len(msgs)-1], nil
}

func (s *MemoryStore) CreateSession(_ context.Context, kind, principalID, token string, expiresAt time.Time) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := model.Session{
		ID:          uuid.NewString(),
		Kind:        kind,
		PrincipalID: principalID,
		Token:       token,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *MemoryStore) GetSessionByToken(_ context.Context, kind, token string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.Kind == kind && sess.Token == token {
			return sess, nil
		}
	}
	return model.Session{}, ErrNotFound
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) CreateVerificationCode(_ context.Context, email, code string, expiresAt time.Time) (model.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vc := model.VerificationCode{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(email),
		Code:      code,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	s.codes[vc.ID] = vc
	return vc, nil
}

func (s *MemoryStore) GetLatestVerificationCode(_ context.Context, email string) (model.VerificationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest model.VerificationCode
	found := false
	for _, vc := range s.codes {
		if !strings.EqualFold(vc.Email, email) {
			continue
		}
		if !found || vc.CreatedAt.After(latest.CreatedAt) {
			latest = vc
			found = true
		}
	}
	if !found {
		return model.VerificationCode{}, ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) DeleteVerificationCode(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[id]; !ok {
		return ErrNotFound
	}
	delete(s.codes, id)
	return nil
}

// sortJobs orders newest first, matching the SQL backend's ORDER BY.
func sortJobs(jobs []model.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
}
