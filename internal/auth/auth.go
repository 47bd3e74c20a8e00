// Package auth checks application users against user_roles.yaml and keeps their
// cookie sessions and WebSocket tokens.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"webdsl/internal/config"
	"webdsl/internal/logging"
	"webdsl/internal/model"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Users indexes the configured users by name.
type Users struct {
	byName map[string]model.User
}

// NewUsers builds the index from user_roles.yaml entries.
func NewUsers(cfgs []config.UserConfig) *Users {
	u := &Users{byName: make(map[string]model.User, len(cfgs))}
	for _, c := range cfgs {
		u.byName[c.Username] = model.User{Username: c.Username, PasswordHash: c.Password, Roles: c.Roles}
	}
	return u
}

// Len returns the number of users.
func (u *Users) Len() int { return len(u.byName) }

// Verify checks password against the user's bcrypt hash.
func (u *Users) Verify(username, password string) (model.User, error) {
	user, ok := u.byName[username]
	if !ok {
		return model.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Service logs users in and out.
type Service struct {
	users *Users
	store *Store
	ttl   time.Duration
	log   *logging.Logger
}

// NewService returns a Service issuing sessions valid for ttl.
func NewService(users *Users, store *Store, ttl time.Duration, log *logging.Logger) *Service {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{users: users, store: store, ttl: ttl, log: log.With("auth")}
}

// Enabled reports whether any user is configured.
func (s *Service) Enabled() bool { return s.users.Len() > 0 }

// Login verifies the credentials and opens a session.
func (s *Service) Login(_ context.Context, username, password string) (Session, error) {
	user, err := s.users.Verify(username, password)
	if err != nil {
		s.log.Warn("login_failed", logging.Fields{"username": username})
		return Session{}, err
	}
	now := s.store.now()
	sess := Session{
		ID:        newSecret(),
		Username:  user.Username,
		Roles:     user.Roles,
		WSToken:   newSecret(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Put(sess); err != nil {
		return Session{}, err
	}
	s.log.Info("login", logging.Fields{"username": username})
	return sess, nil
}

// Logout ends session id.
func (s *Service) Logout(_ context.Context, id string) error {
	return s.store.Delete(id)
}

// Session returns the live session id.
func (s *Service) Session(_ context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrSessionNotFound
	}
	return s.store.Get(id)
}

// ValidateWSToken reports whether token belongs to a live session.
func (s *Service) ValidateWSToken(token string) bool {
	if token == "" {
		return false
	}
	_, err := s.store.ByWSToken(token)
	return err == nil
}

// PurgeExpired removes expired sessions every interval until ctx is done.
func (s *Service) PurgeExpired(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.store.Purge()
			if err != nil {
				s.log.Error("purge_failed", err, nil)
				continue
			}
			if n > 0 {
				s.log.Info("sessions_purged", logging.Fields{"count": n})
			}
		}
	}
}

func newSecret() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
