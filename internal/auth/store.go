package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"attendclient/internal/apiclient"
	"attendclient/internal/logging"
	"attendclient/internal/model"
	"attendclient/internal/store"
)

// Persisted keys. They match what the browser client kept in local storage.
const (
	KeyAuthenticated = "isAuthenticated"
	KeyRole          = "userRole"
	KeyUser          = "user"
	KeyToken         = "token"
)

// State is the persisted login state.
type State struct {
	Authenticated bool
	Role          model.Role
	User          *model.User
	Token         string
}

// HomePath is the landing page of the state's role.
func (s State) HomePath() string {
	return HomePath(s.Role)
}

// Store persists the login state in a KV store.
type Store struct {
	kv     store.KV
	logger *slog.Logger
	now    func() time.Time
}

// NewStore returns a Store over kv.
func NewStore(kv store.KV, logger *slog.Logger) *Store {
	return &Store{kv: kv, logger: logging.OrDiscard(logger), now: time.Now}
}

// Save records a successful login.
func (s *Store) Save(ctx context.Context, sess *apiclient.Session) error {
	if sess == nil {
		return errors.New("auth: nil session")
	}
	user, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.kv.Set(ctx, KeyUser, string(user)); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	if err := s.kv.Set(ctx, KeyRole, string(sess.User.Role)); err != nil {
		return fmt.Errorf("save role: %w", err)
	}
	if sess.Token != "" {
		if err := s.kv.Set(ctx, KeyToken, sess.Token); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
	}
	return s.kv.Set(ctx, KeyAuthenticated, "true")
}

// Load returns the persisted state. A missing state is not an error.
// An expired token clears the state.
func (s *Store) Load(ctx context.Context) (State, error) {
	var st State
	flag, err := s.get(ctx, KeyAuthenticated)
	if err != nil {
		return st, err
	}
	st.Authenticated, _ = strconv.ParseBool(flag)
	if !st.Authenticated {
		return State{}, nil
	}

	role, err := s.get(ctx, KeyRole)
	if err != nil {
		return State{}, err
	}
	st.Role = model.Role(role)

	raw, err := s.get(ctx, KeyUser)
	if err != nil {
		return State{}, err
	}
	if raw != "" {
		var u model.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.logger.Warn("discarding unreadable persisted user", "err", err)
		} else {
			st.User = &u
		}
	}

	if st.Token, err = s.get(ctx, KeyToken); err != nil {
		return State{}, err
	}
	if st.Token != "" {
		if claims, err := Inspect(st.Token); err == nil && claims.Expired(s.now()) {
			s.logger.Info("persisted token expired, clearing login state")
			return State{}, s.Clear(ctx)
		}
	}
	return st, nil
}

// Clear forgets the login state.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyAuthenticated, KeyRole, KeyUser, KeyToken)
}

// ClearOnUnauthorized returns a hook for apiclient.WithUnauthorizedHook.
func (s *Store) ClearOnUnauthorized() func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Clear(ctx); err != nil {
			s.logger.Error("clearing login state failed", "err", err)
			return
		}
		s.logger.Info("remote session rejected, login state cleared")
	}
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, err := s.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return v, err
}
