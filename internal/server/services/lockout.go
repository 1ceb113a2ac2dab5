package services

import (
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// DefaultMaxLoginAttempts is the number of consecutive failures that locks
// an account.
const DefaultMaxLoginAttempts = 5

// LockState is the lockout state of a profile.
type LockState int

const (
	StateActive LockState = iota
	StateLocked
)

func (s LockState) String() string {
	if s == StateLocked {
		return "LOCKED"
	}
	return "ACTIVE"
}

// LockoutPolicy is the ACTIVE/LOCKED state machine. It only mutates the
// profile it is given; callers persist the result under a row lock.
// Locks never expire on their own.
type LockoutPolicy struct {
	threshold int
}

// NewLockoutPolicy falls back to DefaultMaxLoginAttempts when threshold < 1.
func NewLockoutPolicy(threshold int) *LockoutPolicy {
	if threshold < 1 {
		threshold = DefaultMaxLoginAttempts
	}
	return &LockoutPolicy{threshold: threshold}
}

func (l *LockoutPolicy) Threshold() int { return l.threshold }

func (l *LockoutPolicy) State(p *models.Profile) LockState {
	if p.IsLocked {
		return StateLocked
	}
	return StateActive
}

// RegisterFailure counts a failed attempt and locks the profile once the
// threshold is reached. A locked profile is left as is.
func (l *LockoutPolicy) RegisterFailure(p *models.Profile, now time.Time) LockState {
	if p.IsLocked {
		return StateLocked
	}
	p.LoginAttempts++
	p.LastLoginAttempt = &now
	if p.LoginAttempts >= l.threshold {
		p.LoginAttempts = l.threshold
		p.IsLocked = true
		return StateLocked
	}
	return StateActive
}

// RegisterSuccess resets the counter and stamps the login metadata.
func (l *LockoutPolicy) RegisterSuccess(p *models.Profile, now time.Time, ip string) {
	p.LoginAttempts = 0
	p.IsLocked = false
	p.LastLogin = &now
	p.LastLoginIP = ip
}

// Reset is the administrative unlock.
func (l *LockoutPolicy) Reset(p *models.Profile) {
	p.LoginAttempts = 0
	p.IsLocked = false
}
