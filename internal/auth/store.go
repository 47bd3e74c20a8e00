package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketSessions = "sessions"
	bucketWSTokens = "ws_tokens"
)

// ErrSessionNotFound is returned for unknown and expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// Session is a logged-in user. WSToken authenticates the user's WebSocket.
type Session struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	WSToken   string    `json:"ws_token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions in a bbolt file, indexed by id and by WebSocket token.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenStore opens or creates the session file at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range []string{bucketSessions, bucketWSTokens} {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init session store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Put stores s.
func (st *Store) Put(s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return st.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(bucketSessions)).Put([]byte(s.ID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketWSTokens)).Put([]byte(s.WSToken), []byte(s.ID))
	})
}

// Get returns the session id. An expired session is deleted and reported missing.
func (st *Store) Get(id string) (Session, error) {
	var (
		s     Session
		found bool
	)
	err := st.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketSessions)).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &s)
	})
	if err != nil {
		return Session{}, err
	}
	if !found {
		return Session{}, ErrSessionNotFound
	}
	if s.Expired(st.now()) {
		if err := st.Delete(id); err != nil {
			return Session{}, err
		}
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// ByWSToken returns the session owning token.
func (st *Store) ByWSToken(token string) (Session, error) {
	var id []byte
	err := st.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketWSTokens)).Get([]byte(token)); v != nil {
			id = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	if id == nil {
		return Session{}, ErrSessionNotFound
	}
	return st.Get(string(id))
}

// Delete removes session id and its token. Deleting a missing session is not an error.
func (st *Store) Delete(id string) error {
	return st.db.Update(func(tx *bolt.Tx) error {
		return deleteSession(tx, []byte(id))
	})
}

func deleteSession(tx *bolt.Tx, id []byte) error {
	sessions := tx.Bucket([]byte(bucketSessions))
	v := sessions.Get(id)
	if v == nil {
		return nil
	}
	var s Session
	if err := json.Unmarshal(v, &s); err == nil && s.WSToken != "" {
		if err := tx.Bucket([]byte(bucketWSTokens)).Delete([]byte(s.WSToken)); err != nil {
			return err
		}
	}
	return sessions.Delete(id)
}

// Purge deletes every expired session and returns how many were removed.
func (st *Store) Purge() (int, error) {
	now := st.now()
	n := 0
	err := st.db.Update(func(tx *bolt.Tx) error {
		var expired [][]byte
		c := tx.Bucket([]byte(bucketSessions)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var s Session
			if err := json.Unmarshal(v, &s); err != nil || s.Expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}
		for _, k := range expired {
			if err := deleteSession(tx, k); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	return n, err
}

// Close closes the file.
func (st *Store) Close() error {
	return st.db.Close()
}
