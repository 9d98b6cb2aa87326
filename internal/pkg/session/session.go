package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/status"
)

type contextKey struct{}

var accountKey contextKey

type Account struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

func ContextWithAccount(ctx context.Context, acc Account) context.Context {
	return context.WithValue(ctx, accountKey, acc)
}

func GetAccountFromCtx(ctx context.Context) (Account, error) {
	acc, ok := ctx.Value(accountKey).(Account)
	if !ok {
		return Account{}, errors.New(http.StatusUnauthorized, status.UNAUTHORIZED, "no account attached to this request")
	}

	return acc, nil
}

type Store interface {
	Set(ctx context.Context, sessionID string, acc Account, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (Account, error)
	Delete(ctx context.Context, sessionID string) error
}

type redisSessionStore struct {
	logger *logrus.Logger
	client *redis.Client
}

func NewRedisSessionStore(logger *logrus.Logger, client *redis.Client) Store {
	return &redisSessionStore{
		logger: logger,
		client: client,
	}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// Set implements Store.
func (s *redisSessionStore) Set(ctx context.Context, sessionID string, acc Account, ttl time.Duration) error {
	buff, _ := json.Marshal(acc)

	if err := s.client.Set(ctx, sessionKey(sessionID), buff, ttl).Err(); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while storing session")
	}

	return nil
}

// Get implements Store.
func (s *redisSessionStore) Get(ctx context.Context, sessionID string) (Account, error) {
	buff, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return Account{}, errors.New(http.StatusUnauthorized, status.UNAUTHORIZED, "session is not found or has expired")
	}
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error()
		return Account{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting session")
	}

	var acc Account
	if err := json.Unmarshal(buff, &acc); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error()
		return Account{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while getting session")
	}

	return acc, nil
}

// Delete implements Store.
func (s *redisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error()
		return errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while deleting session")
	}

	return nil
}
