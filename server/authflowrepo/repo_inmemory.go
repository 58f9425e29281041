package authflowrepo

import (
	"errors"
	"sync"
	"time"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu     sync.RWMutex
	states map[string]*AuthFlowState
}

var _ Repo = (*InMemoryRepo)(nil)

// NewInMemoryRepo creates a new in-memory auth flow state repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		states: make(map[string]*AuthFlowState),
	}
}

// Upsert stores or updates an auth flow state
func (r *InMemoryRepo) Upsert(state string, authState *AuthFlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if authState == nil {
		return errors.New("authState cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Create a copy to prevent external modifications
	stored := *authState
	r.states[state] = &stored

	return nil
}

// Get retrieves an auth flow state by state parameter
func (r *InMemoryRepo) Get(state string) (*AuthFlowState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	authState, exists := r.states[state]
	if !exists {
		return nil, ErrStateNotFound
	}

	// Return a copy to prevent external modifications
	found := *authState
	return &found, nil
}

// Delete removes an auth flow state
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, state)
	return nil
}

func (r *InMemoryRepo) Take(state string) (*AuthFlowState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	authState, exists := r.states[state]
	if !exists {
		return nil, ErrStateNotFound
	}
	delete(r.states, state)
	return authState, nil
}

func (r *InMemoryRepo) DeleteExpired(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for state, authState := range r.states {
		if authState.CreatedAt.Before(cutoff) {
			delete(r.states, state)
			removed++
		}
	}
	return removed
}
