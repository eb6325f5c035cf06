package calendar

import (
	"regexp"
	"strings"
	"time"

	"github.com/jgirmay/meetingbot/pkg/models"
)

// Event is a calendar entry as returned by the integration service
type Event struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Location         string    `json:"location"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	WebConferenceURL string    `json:"web_conference_url"`
	Password         string    `json:"password"`
	Cancelled        bool      `json:"cancelled"`
}

var linkPattern = regexp.MustCompile(`https://[^\s<>"')]+`)

// MeetingLink returns the first link that belongs to a supported platform,
// preferring the conference URL over links in the location or description
func (e Event) MeetingLink() (string, models.Platform, bool) {
	candidates := []string{strings.TrimSpace(e.WebConferenceURL)}
	candidates = append(candidates, linkPattern.FindAllString(e.Location, -1)...)
	candidates = append(candidates, linkPattern.FindAllString(e.Description, -1)...)

	for _, link := range candidates {
		if link == "" {
			continue
		}
		link = strings.TrimRight(link, ".,;")
		if platform, ok := models.DetectPlatform(link); ok {
			return link, platform, true
		}
	}
	return "", "", false
}

// ToMeeting converts the event. ok is false for cancelled events, events
// without a joinable link and events that do not end after they start.
func (e Event) ToMeeting() (models.MeetingInfo, bool) {
	if e.Cancelled || e.ID == "" {
		return models.MeetingInfo{}, false
	}

	link, platform, ok := e.MeetingLink()
	if !ok {
		return models.MeetingInfo{}, false
	}

	meeting := models.MeetingInfo{
		ID:        e.ID,
		Platform:  platform,
		URL:       link,
		Password:  e.Password,
		Title:     e.Title,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
	}
	if meeting.Validate() != nil {
		return models.MeetingInfo{}, false
	}
	return meeting, true
}

// ToMeetings converts events, dropping the ones that cannot be joined
func ToMeetings(events []Event) []models.MeetingInfo {
	meetings := make([]models.MeetingInfo, 0, len(events))
	for _, e := range events {
		if m, ok := e.ToMeeting(); ok {
			meetings = append(meetings, m)
		}
	}
	return meetings
}
