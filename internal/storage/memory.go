package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/domain"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	users    map[int64]*domain.User
	patients map[int64]domain.Patient
	analyses []domain.Analysis
	nextID   int64
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[int64]*domain.User),
		patients: make(map[int64]domain.Patient),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) CreateUser(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Username == u.Username {
			return apperr.Errorf(apperr.Conflict, "storage.CreateUser", "username %q already exists", u.Username)
		}
	}
	u.ID = m.id()
	stored := *u
	m.users[u.ID] = &stored
	return nil
}

func (m *Memory) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			found := *u
			return &found, nil
		}
	}
	return nil, apperr.Errorf(apperr.NotFound, "storage.UserByUsername", "user %q", username)
}

func (m *Memory) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, apperr.Errorf(apperr.NotFound, "storage.UserByID", "user %d", id)
	}
	found := *u
	return &found, nil
}

func (m *Memory) UpdateUser(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; !ok {
		return apperr.Errorf(apperr.NotFound, "storage.UpdateUser", "user %d", u.ID)
	}
	stored := *u
	m.users[u.ID] = &stored
	return nil
}

func (m *Memory) CreatePatient(ctx context.Context, p domain.Patient) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.id()
	m.patients[p.ID] = p
	return p.ID, nil
}

func (m *Memory) RecordAnalysis(ctx context.Context, a domain.Analysis) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[a.UserID]; !ok {
		return 0, apperr.Errorf(apperr.NotFound, "storage.RecordAnalysis", "user %d", a.UserID)
	}
	if _, ok := m.patients[a.PatientID]; !ok {
		return 0, apperr.Errorf(apperr.NotFound, "storage.RecordAnalysis", "patient %d", a.PatientID)
	}
	a.ID = m.id()
	m.analyses = append(m.analyses, a)
	return a.ID, nil
}

func (m *Memory) RecordSubmission(ctx context.Context, p domain.Patient, a domain.Analysis) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[a.UserID]; !ok {
		return 0, 0, apperr.Errorf(apperr.NotFound, "storage.RecordSubmission", "user %d", a.UserID)
	}
	p.ID = m.id()
	m.patients[p.ID] = p

	a.PatientID = p.ID
	a.ID = m.id()
	m.analyses = append(m.analyses, a)
	return p.ID, a.ID, nil
}

// Patients reports how many patients are stored.
func (m *Memory) Patients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.patients)
}

func (m *Memory) FetchUserHistory(ctx context.Context, userID int64) ([]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]domain.HistoryEntry, 0)
	for _, a := range m.analyses {
		if a.UserID != userID {
			continue
		}
		entries = append(entries, domain.HistoryEntry{Analysis: a, Patient: m.patients[a.PatientID]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

var _ Store = (*Memory)(nil)
