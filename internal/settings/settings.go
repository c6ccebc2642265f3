// Package settings persists the user-configurable scheduling policy: which
// weekdays are offered, the grid window and the same-day lead time.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ubva/crm-scheduler/internal/eligibility"
)

const redisKey = "agendamento:settings"

// Settings is the stored scheduling policy.
type Settings struct {
	Timezone        string   `json:"timezone"`
	Days            []string `json:"days"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	IntervalMinutes int      `json:"interval_minutes"`
	LeadTimeMinutes int      `json:"lead_time_minutes"`
}

// Defaults returns Mon–Fri, 08:00 to 18:00 hourly, one hour lead time.
func Defaults(timezone string) Settings {
	if strings.TrimSpace(timezone) == "" {
		timezone = eligibility.DefaultLocation
	}
	return Settings{
		Timezone:        timezone,
		Days:            []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
		StartTime:       "08:00",
		EndTime:         "18:00",
		IntervalMinutes: 60,
		LeadTimeMinutes: 60,
	}
}

// Validate checks the settings and returns the first problem found.
func (s Settings) Validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil || strings.TrimSpace(s.Timezone) == "" {
		return fmt.Errorf("timezone %q is not a known IANA zone", s.Timezone)
	}
	if len(s.Days) == 0 {
		return fmt.Errorf("days must list at least one weekday")
	}
	if _, err := eligibility.ParseWeekdays(s.Days); err != nil {
		return err
	}
	start, err := parseClock(s.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	end, err := parseClock(s.EndTime)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	if end <= start {
		return fmt.Errorf("end_time must be after start_time")
	}
	if s.IntervalMinutes < 5 || s.IntervalMinutes > 240 {
		return fmt.Errorf("interval_minutes must be between 5 and 240")
	}
	if s.LeadTimeMinutes < 0 || s.LeadTimeMinutes > 24*60 {
		return fmt.Errorf("lead_time_minutes must be between 0 and 1440")
	}
	return nil
}

// Rules converts the settings onto base, which supplies the business hours.
func (s Settings) Rules(base eligibility.Rules) (eligibility.Rules, eligibility.Window, error) {
	if err := s.Validate(); err != nil {
		return eligibility.Rules{}, eligibility.Window{}, err
	}
	days, _ := eligibility.ParseWeekdays(s.Days)
	start, _ := parseClock(s.StartTime)
	end, _ := parseClock(s.EndTime)

	rules := base
	rules.Location = eligibility.LoadLocation(s.Timezone)
	rules.LeadTime = time.Duration(s.LeadTimeMinutes) * time.Minute
	rules.AllowedDays = days
	window := eligibility.Window{
		StartMinute: start,
		EndMinute:   end,
		Interval:    time.Duration(s.IntervalMinutes) * time.Minute,
	}
	return rules, window, nil
}

// parseClock reads "HH:MM" as minutes after midnight.
func parseClock(raw string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%q is not HH:MM", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Store persists one Settings document.
type Store interface {
	Get(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

// RedisStore keeps the settings as JSON under a single key.
type RedisStore struct {
	redis    *redis.Client
	defaults Settings
}

// NewRedisStore creates a store returning defaults until something is saved.
func NewRedisStore(client *redis.Client, defaults Settings) *RedisStore {
	return &RedisStore{redis: client, defaults: defaults}
}

func (s *RedisStore) Get(ctx context.Context) (Settings, error) {
	data, err := s.redis.Get(ctx, redisKey).Bytes()
	if err == redis.Nil {
		return s.defaults, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: get: %w", err)
	}
	var out Settings
	if err := json.Unmarshal(data, &out); err != nil {
		return Settings{}, fmt.Errorf("settings: unmarshal: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, in Settings) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, redisKey, data, 0).Err(); err != nil {
		return fmt.Errorf("settings: set: %w", err)
	}
	return nil
}

// MemoryStore is used when Redis is not configured.
type MemoryStore struct {
	mu  sync.RWMutex
	cur Settings
}

func NewMemoryStore(defaults Settings) *MemoryStore {
	return &MemoryStore{cur: defaults}
}

func (s *MemoryStore) Get(context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.cur
	out.Days = append([]string(nil), s.cur.Days...)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, in Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in.Days = append([]string(nil), in.Days...)
	s.cur = in
	return nil
}

// Provider resolves the live eligibility rules from the store.
type Provider struct {
	store Store
	base  eligibility.Rules
}

// NewProvider combines stored settings with base business hours.
func NewProvider(store Store, base eligibility.Rules) *Provider {
	return &Provider{store: store, base: base}
}

// Schedule returns the rules and grid window currently in force.
func (p *Provider) Schedule(ctx context.Context) (eligibility.Rules, eligibility.Window, error) {
	s, err := p.store.Get(ctx)
	if err != nil {
		return eligibility.Rules{}, eligibility.Window{}, err
	}
	return s.Rules(p.base)
}

// Location returns the stored timezone, or the base one when the store fails.
func (p *Provider) Location(ctx context.Context) *time.Location {
	s, err := p.store.Get(ctx)
	if err != nil || strings.TrimSpace(s.Timezone) == "" {
		return p.baseLocation()
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return p.baseLocation()
	}
	return loc
}

func (p *Provider) baseLocation() *time.Location {
	if p.base.Location == nil {
		return time.UTC
	}
	return p.base.Location
}
