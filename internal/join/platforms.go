package join

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jgirmay/meetingbot/pkg/models"
)

var (
	zoomNumberPattern = regexp.MustCompile(`^\d{9,11}$`)
	meetCodePattern   = regexp.MustCompile(`^[a-z]{3}-[a-z]{4}-[a-z]{3}$`)
)

// platformExecutor derives launch parameters for one platform and delegates
// the automation to a Runner
type platformExecutor struct {
	platform models.Platform
	runner   Runner
	params   func(u *url.URL, meeting models.MeetingInfo) (map[string]string, error)
}

func (p *platformExecutor) Join(ctx context.Context, meeting models.MeetingInfo, settings models.BotSettings) (Handle, error) {
	if meeting.Platform != p.platform {
		return Handle{}, fmt.Errorf("%w: %s executor cannot join %q", ErrUnsupportedPlatform, p.platform, meeting.Platform)
	}

	u, err := url.Parse(strings.TrimSpace(meeting.URL))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return Handle{}, Failed(ReasonInvalidURL, fmt.Errorf("meeting url %q is not an https link", meeting.URL))
	}
	if detected, ok := models.DetectPlatform(meeting.URL); !ok || detected != p.platform {
		return Handle{}, Failed(ReasonInvalidURL, fmt.Errorf("meeting url %q is not a %s link", meeting.URL, p.platform))
	}

	params, err := p.params(u, meeting)
	if err != nil {
		return Handle{}, Failed(ReasonInvalidURL, err)
	}

	id, err := p.runner.Launch(ctx, LaunchRequest{
		Platform:   p.platform,
		MeetingID:  meeting.ID,
		URL:        meeting.URL,
		BotName:    settings.DisplayName(),
		Record:     settings.RecordMeetings,
		Transcribe: settings.TranscribeAudio,
		Params:     params,
	})
	if err != nil {
		return Handle{}, err
	}
	return Handle{ID: id, Platform: p.platform, MeetingID: meeting.ID}, nil
}

func (p *platformExecutor) Leave(ctx context.Context, handle Handle) error {
	return p.runner.Terminate(ctx, handle.ID)
}

// NewZoom returns the Zoom executor. Links look like /j/<number> or
// /wc/join/<number>, with the passcode in pwd or on the meeting.
func NewZoom(runner Runner) Executor {
	return &platformExecutor{platform: models.PlatformZoom, runner: runner, params: zoomParams}
}

func zoomParams(u *url.URL, meeting models.MeetingInfo) (map[string]string, error) {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	var number string
	switch {
	case len(segments) == 2 && segments[0] == "j":
		number = segments[1]
	case len(segments) == 3 && segments[0] == "wc" && segments[1] == "join":
		number = segments[2]
	case len(segments) >= 2 && segments[0] == "wc":
		number = segments[1]
	}
	if !zoomNumberPattern.MatchString(number) {
		return nil, fmt.Errorf("zoom link %q has no meeting number", u.String())
	}

	params := map[string]string{"meeting_number": number}
	passcode := meeting.Password
	if passcode == "" {
		passcode = u.Query().Get("pwd")
	}
	if passcode != "" {
		params["passcode"] = passcode
	}
	return params, nil
}

// NewTeams returns the Microsoft Teams executor
func NewTeams(runner Runner) Executor {
	return &platformExecutor{platform: models.PlatformTeams, runner: runner, params: teamsParams}
}

func teamsParams(u *url.URL, _ models.MeetingInfo) (map[string]string, error) {
	path := u.EscapedPath()
	switch {
	case strings.HasPrefix(path, "/l/meetup-join/"):
		params := map[string]string{"join_url": u.String()}
		if ctx := u.Query().Get("context"); ctx != "" {
			params["context"] = ctx
		}
		return params, nil
	case strings.HasPrefix(path, "/meet/"):
		id := strings.TrimPrefix(path, "/meet/")
		if id == "" {
			break
		}
		params := map[string]string{"join_url": u.String(), "meeting_code": id}
		if p := u.Query().Get("p"); p != "" {
			params["passcode"] = p
		}
		return params, nil
	}
	return nil, fmt.Errorf("teams link %q is not a meeting join link", u.String())
}

// NewGoogleMeet returns the Google Meet executor
func NewGoogleMeet(runner Runner) Executor {
	return &platformExecutor{platform: models.PlatformGoogleMeet, runner: runner, params: meetParams}
}

func meetParams(u *url.URL, _ models.MeetingInfo) (map[string]string, error) {
	code := strings.ToLower(strings.Trim(u.Path, "/"))
	if !meetCodePattern.MatchString(code) {
		return nil, fmt.Errorf("meet link %q has no meeting code", u.String())
	}
	return map[string]string{"meeting_code": code}, nil
}
