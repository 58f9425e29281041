package authflowrepo

import (
	"errors"
	"time"
)

var ErrStateNotFound = errors.New("state not found")

// AuthFlowState is what the login endpoint remembers until the provider calls back.
type AuthFlowState struct {
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, authState *AuthFlowState) error
	Get(state string) (*AuthFlowState, error)
	Delete(state string) error
	// Take returns the state and removes it, so a state can be redeemed once.
	Take(state string) (*AuthFlowState, error)
	// DeleteExpired removes states created before cutoff and returns how many were removed.
	DeleteExpired(cutoff time.Time) int
}
