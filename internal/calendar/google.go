package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/bookline/booking-engine/pkg/logging"
)

const primaryCalendar = "primary"

// GoogleClient talks to the primary calendar of whoever owns the refresh
// token. It holds only immutable OAuth application config; per-call services
// carry the credential.
type GoogleClient struct {
	oauth  *oauth2.Config
	logger *logging.Logger
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

func NewGoogleClient(cfg GoogleConfig, logger *logging.Logger) *GoogleClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes: []string{
				gcal.CalendarScope,
				gcal.CalendarEventsScope,
			},
			Endpoint: google.Endpoint,
		},
		logger: logger,
	}
}

// service builds a calendar API client bound to the given refresh token.
func (g *GoogleClient) service(ctx context.Context, credential string) (*gcal.Service, error) {
	if credential == "" {
		return nil, errors.New("calendar: empty credential")
	}
	ts := g.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: credential})
	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("calendar: build service: %w", err)
	}
	return svc, nil
}

func (g *GoogleClient) ListUpcoming(ctx context.Context, credential string, maxResults int64) ([]Event, error) {
	svc, err := g.service(ctx, credential)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Events.List(primaryCalendar).
		TimeMin(time.Now().Format(time.RFC3339)).
		MaxResults(maxResults).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: list upcoming events: %w", err)
	}

	return convertEvents(resp.Items, time.UTC), nil
}

func (g *GoogleClient) ListBetween(ctx context.Context, credential string, from, to time.Time, timezone string) ([]Event, error) {
	svc, err := g.service(ctx, credential)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	resp, err := svc.Events.List(primaryCalendar).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		TimeZone(timezone).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: list events: %w", err)
	}

	return convertEvents(resp.Items, loc), nil
}

func (g *GoogleClient) CreateEvent(ctx context.Context, credential string, in EventInput) (*Event, error) {
	svc, err := g.service(ctx, credential)
	if err != nil {
		return nil, err
	}

	ev := buildEvent(in)
	ev.Reminders = &gcal.EventReminders{
		UseDefault: false,
		Overrides: []*gcal.EventReminder{
			{Method: "email", Minutes: 60},
			{Method: "popup", Minutes: 15},
		},
		ForceSendFields: []string{"UseDefault"},
	}

	created, err := svc.Events.Insert(primaryCalendar, ev).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: create event: %w", err)
	}

	g.logger.Info("calendar event created", "event_id", created.Id, "summary", in.Summary)

	out := convertEvent(created, time.UTC)
	return &out, nil
}

func (g *GoogleClient) UpdateEvent(ctx context.Context, credential, eventID string, in EventInput) (*Event, error) {
	svc, err := g.service(ctx, credential)
	if err != nil {
		return nil, err
	}

	updated, err := svc.Events.Update(primaryCalendar, eventID, buildEvent(in)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: update event %s: %w", eventID, err)
	}

	out := convertEvent(updated, time.UTC)
	return &out, nil
}

func (g *GoogleClient) PatchDescription(ctx context.Context, credential, eventID, description string) error {
	svc, err := g.service(ctx, credential)
	if err != nil {
		return err
	}

	_, err = svc.Events.Patch(primaryCalendar, eventID, &gcal.Event{Description: description}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("calendar: patch event %s: %w", eventID, err)
	}
	return nil
}

func (g *GoogleClient) DeleteEvent(ctx context.Context, credential, eventID string) error {
	svc, err := g.service(ctx, credential)
	if err != nil {
		return err
	}

	if err := svc.Events.Delete(primaryCalendar, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar: delete event %s: %w", eventID, err)
	}
	return nil
}

func (g *GoogleClient) AuthURL(state string) string {
	// prompt=consent forces Google to return a refresh token.
	return g.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

func (g *GoogleClient) ExchangeCode(ctx context.Context, code string) (string, error) {
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("calendar: exchange code: %w", err)
	}
	if tok.RefreshToken == "" {
		return "", errors.New("calendar: no refresh token in exchange response")
	}
	return tok.RefreshToken, nil
}

func buildEvent(in EventInput) *gcal.Event {
	description := in.Description
	if description == "" {
		description = "Appointment booking"
	}

	ev := &gcal.Event{
		Summary:     in.Summary,
		Description: description,
		Start: &gcal.EventDateTime{
			DateTime: in.Start.Format(time.RFC3339),
			TimeZone: in.Timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: in.End.Format(time.RFC3339),
			TimeZone: in.Timezone,
		},
	}
	for _, email := range in.Attendees {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: email})
	}
	return ev
}

// convertEvent normalizes a Google event. All-day events carry only a date;
// they are pinned to midnight in loc and flagged so callers can treat the
// whole day as busy.
func convertEvent(ev *gcal.Event, loc *time.Location) Event {
	out := Event{
		ID:          ev.Id,
		Summary:     ev.Summary,
		Description: ev.Description,
	}

	if ev.Start != nil {
		if ev.Start.DateTime != "" {
			if t, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
				out.Start = t
			}
		} else if ev.Start.Date != "" {
			if t, err := time.ParseInLocation("2006-01-02", ev.Start.Date, loc); err == nil {
				out.Start = t
				out.AllDay = true
			}
		}
	}
	if ev.End != nil {
		if ev.End.DateTime != "" {
			if t, err := time.Parse(time.RFC3339, ev.End.DateTime); err == nil {
				out.End = t
			}
		} else if ev.End.Date != "" {
			if t, err := time.ParseInLocation("2006-01-02", ev.End.Date, loc); err == nil {
				out.End = t
			}
		}
	}

	for _, a := range ev.Attendees {
		if a != nil && a.Email != "" {
			out.Attendees = append(out.Attendees, a.Email)
		}
	}

	return out
}

func convertEvents(items []*gcal.Event, loc *time.Location) []Event {
	events := make([]Event, 0, len(items))
	for _, ev := range items {
		if ev == nil {
			continue
		}
		events = append(events, convertEvent(ev, loc))
	}
	return events
}
