package scheduling

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	DefaultTimezone           = "America/New_York"
	DefaultGranularityMinutes = 30
	DefaultMaxRecommendations = 5
	DefaultDaysAhead          = 14

	MaxDaysAhead       = 90
	MaxDurationMinutes = 720
)

// Settings controls how candidate slots are generated.
type Settings struct {
	Timezone           string        `json:"timezone"`
	GranularityMinutes int           `json:"granularity_minutes"`
	MaxRecommendations int           `json:"max_recommendations"`
	BusinessHours      BusinessHours `json:"business_hours"`
}

// DefaultSettings returns weekday 09:00-17:00 hours in the default timezone.
func DefaultSettings() Settings {
	return Settings{
		Timezone:           DefaultTimezone,
		GranularityMinutes: DefaultGranularityMinutes,
		MaxRecommendations: DefaultMaxRecommendations,
		BusinessHours:      WeekdayHours(),
	}
}

// Validate checks the settings are usable for slot generation.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Timezone) == "" {
		return fmt.Errorf("%w: timezone is required", ErrInvalidSettings)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSettings, s.Timezone)
	}
	if s.GranularityMinutes < 5 || s.GranularityMinutes > 240 {
		return fmt.Errorf("%w: granularity_minutes must be between 5 and 240", ErrInvalidSettings)
	}
	if s.MaxRecommendations < 1 || s.MaxRecommendations > MaxDaysAhead+1 {
		return fmt.Errorf("%w: max_recommendations must be between 1 and %d", ErrInvalidSettings, MaxDaysAhead+1)
	}
	if err := s.BusinessHours.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// Location loads the configured timezone, falling back to UTC.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil || s.Timezone == "" {
		return time.UTC
	}
	return loc
}

func (s Settings) granularity() int {
	if s.GranularityMinutes <= 0 {
		return DefaultGranularityMinutes
	}
	return s.GranularityMinutes
}

func (s Settings) maxRecommendations() int {
	if s.MaxRecommendations <= 0 {
		return DefaultMaxRecommendations
	}
	return s.MaxRecommendations
}
