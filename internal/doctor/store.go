package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound reports an unknown doctor id.
var ErrNotFound = errors.New("doctor: not found")

// Store persists doctor profiles as JSON documents in Redis.
type Store struct {
	redis *redis.Client
}

// NewStore creates a doctor profile store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(doctorID string) string {
	return fmt.Sprintf("doctor:profile:%s", doctorID)
}

// Get retrieves a doctor profile.
func (s *Store) Get(ctx context.Context, doctorID string) (*Doctor, error) {
	data, err := s.redis.Get(ctx, s.key(doctorID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("doctor: get profile: %w", err)
	}

	var d Doctor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("doctor: unmarshal profile: %w", err)
	}
	return &d, nil
}

// Set saves a doctor profile.
func (s *Store) Set(ctx context.Context, d *Doctor) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("doctor: profile id required")
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("doctor: marshal profile: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(d.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("doctor: set profile: %w", err)
	}
	return nil
}

// SetConsultationStatus flips the in/out flag without touching availability.
func (s *Store) SetConsultationStatus(ctx context.Context, doctorID string, status string) error {
	d, err := s.Get(ctx, doctorID)
	if err != nil {
		return err
	}
	d.ConsultationStatus = toConsultationStatus(status)
	return s.Set(ctx, d)
}
