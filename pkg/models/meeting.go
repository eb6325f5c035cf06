package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Platform identifies the conferencing product hosting a meeting
type Platform string

const (
	PlatformZoom       Platform = "zoom"
	PlatformTeams      Platform = "teams"
	PlatformGoogleMeet Platform = "googlemeet"
)

// Platforms lists every platform a bot can join
var Platforms = []Platform{PlatformZoom, PlatformTeams, PlatformGoogleMeet}

// ParsePlatform converts a stored or user supplied platform name
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformZoom, PlatformTeams, PlatformGoogleMeet:
		return p, nil
	case "google_meet", "meet":
		return PlatformGoogleMeet, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// DetectPlatform infers the platform from a meeting link. ok is false for
// links that do not belong to a supported platform.
func DetectPlatform(link string) (Platform, bool) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case host == "zoom.us" || strings.HasSuffix(host, ".zoom.us"):
		return PlatformZoom, true
	case host == "teams.microsoft.com" || host == "teams.live.com":
		return PlatformTeams, true
	case host == "meet.google.com":
		return PlatformGoogleMeet, true
	}
	return "", false
}

// MeetingInfo is a joinable meeting derived from a calendar event
type MeetingInfo struct {
	ID        string    `json:"id"`
	Platform  Platform  `json:"platform"`
	URL       string    `json:"url"`
	Password  string    `json:"password,omitempty"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Validate checks the invariants a meeting must hold before a bot considers it
func (m MeetingInfo) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("meeting id is required")
	}
	if m.URL == "" {
		return fmt.Errorf("meeting %s has no url", m.ID)
	}
	if _, err := ParsePlatform(string(m.Platform)); err != nil {
		return fmt.Errorf("meeting %s: %w", m.ID, err)
	}
	if !m.StartTime.Before(m.EndTime) {
		return fmt.Errorf("meeting %s starts at or after its end", m.ID)
	}
	return nil
}

// JoinWindowStart is the earliest instant a bot may join the meeting
func (m MeetingInfo) JoinWindowStart(s BotSettings) time.Time {
	return m.StartTime.Add(-time.Duration(s.JoinBeforeMinutes) * time.Minute)
}

// InJoinWindow reports whether now lies in [JoinWindowStart, StartTime]
func (m MeetingInfo) InJoinWindow(now time.Time, s BotSettings) bool {
	return !now.Before(m.JoinWindowStart(s)) && !now.After(m.StartTime)
}

// LeaveDeadline is the instant after which an active bot is forced out
func LeaveDeadline(scheduledEnd time.Time, s BotSettings) time.Time {
	return scheduledEnd.Add(time.Duration(s.LeaveAfterMinutes) * time.Minute)
}
