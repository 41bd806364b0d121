// ABOUTME: Remote calendar gateway over the Google Calendar v3 API
// ABOUTME: Translates internal events to/from the provider wire format with bounded calls
package calsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/feelgame3025/ilouli-homepage-sub000/dates"
	"github.com/feelgame3025/ilouli-homepage-sub000/errs"
	"github.com/feelgame3025/ilouli-homepage-sub000/models"
)

const (
	primaryCalendar = "primary"
	maxResults      = 250 // Google Calendar API max per page
	callTimeout     = 15 * time.Second
)

// CalendarGateway issues authenticated CRUD calls against the provider.
// Callers hand in an already-fresh token; a 401 here means the refresh path
// itself is broken and surfaces as ErrAuthExpired.
type CalendarGateway interface {
	ListEvents(ctx context.Context, tok *oauth2.Token, timeMin, timeMax string) ([]models.Event, error)
	CreateEvent(ctx context.Context, tok *oauth2.Token, event *models.Event) (string, error)
	UpdateEvent(ctx context.Context, tok *oauth2.Token, remoteID string, event *models.Event) error
	DeleteEvent(ctx context.Context, tok *oauth2.Token, remoteID string) error
}

// GoogleGateway is the production CalendarGateway.
type GoogleGateway struct {
	timeZone string
	// endpoint overrides the API base URL in tests; empty means production.
	endpoint string
	timeout  time.Duration
}

func NewGoogleGateway(cfg *Config) *GoogleGateway {
	return &GoogleGateway{
		timeZone: cfg.TimeZone,
		timeout:  callTimeout,
	}
}

// service builds a calendar client bound to the given token. The token source
// is static: refreshing is the OAuthClient's job, never the gateway's.
func (g *GoogleGateway) service(ctx context.Context, tok *oauth2.Token) (*calendar.Service, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(tok)),
	}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}

	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return service, nil
}

func (g *GoogleGateway) ListEvents(ctx context.Context, tok *oauth2.Token, timeMin, timeMax string) ([]models.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	service, err := g.service(ctx, tok)
	if err != nil {
		return nil, err
	}

	var result []models.Event
	pageToken := ""
	for {
		call := service.Events.List(primaryCalendar).
			MaxResults(maxResults).
			SingleEvents(true).
			OrderBy("startTime")
		if timeMin != "" {
			call = call.TimeMin(dates.ComposeDateTime(timeMin, "00:00") + "Z")
		}
		if timeMax != "" {
			call = call.TimeMax(dates.ComposeDateTime(timeMax, "23:59") + "Z")
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		events, err := call.Context(ctx).Do()
		if err != nil {
			return nil, mapAPIError(err)
		}

		for _, item := range events.Items {
			if item.Status == "cancelled" {
				continue
			}
			event, err := fromGoogleEvent(item)
			if err != nil {
				// Un-mappable items (recurrence leftovers, odd shapes) are
				// skipped rather than failing the whole pull.
				continue
			}
			result = append(result, *event)
		}

		pageToken = events.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return result, nil
}

func (g *GoogleGateway) CreateEvent(ctx context.Context, tok *oauth2.Token, event *models.Event) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	service, err := g.service(ctx, tok)
	if err != nil {
		return "", err
	}

	payload, err := g.toGoogleEvent(event)
	if err != nil {
		return "", err
	}

	created, err := service.Events.Insert(primaryCalendar, payload).Context(ctx).Do()
	if err != nil {
		return "", mapAPIError(err)
	}
	return created.Id, nil
}

func (g *GoogleGateway) UpdateEvent(ctx context.Context, tok *oauth2.Token, remoteID string, event *models.Event) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	service, err := g.service(ctx, tok)
	if err != nil {
		return err
	}

	payload, err := g.toGoogleEvent(event)
	if err != nil {
		return err
	}

	_, err = service.Events.Update(primaryCalendar, remoteID, payload).Context(ctx).Do()
	if err != nil {
		return mapAPIError(err)
	}
	return nil
}

func (g *GoogleGateway) DeleteEvent(ctx context.Context, tok *oauth2.Token, remoteID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	service, err := g.service(ctx, tok)
	if err != nil {
		return err
	}

	if err := service.Events.Delete(primaryCalendar, remoteID).Context(ctx).Do(); err != nil {
		return mapAPIError(err)
	}
	return nil
}

// toGoogleEvent maps an internal event onto the provider wire shape. All-day
// events use the exclusive-end date convention; timed events get a one-hour
// default duration.
func (g *GoogleGateway) toGoogleEvent(event *models.Event) (*calendar.Event, error) {
	out := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{"category": event.Category},
		},
	}

	if event.AllDay {
		end, err := dates.AddDays(event.Date, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to compute all-day end date: %w", err)
		}
		out.Start = &calendar.EventDateTime{Date: event.Date}
		out.End = &calendar.EventDateTime{Date: end}
		return out, nil
	}

	out.Start = &calendar.EventDateTime{
		DateTime: dates.ComposeDateTime(event.Date, event.Time),
		TimeZone: g.timeZone,
	}
	endDate, endClock, err := addHour(event.Date, event.Time)
	if err != nil {
		return nil, err
	}
	out.End = &calendar.EventDateTime{
		DateTime: dates.ComposeDateTime(endDate, endClock),
		TimeZone: g.timeZone,
	}
	return out, nil
}

// addHour advances a date+clock pair by one hour with component arithmetic.
func addHour(date, clock string) (string, string, error) {
	hour := int(clock[0]-'0')*10 + int(clock[1]-'0')
	if hour < 23 {
		return date, fmt.Sprintf("%02d%s", hour+1, clock[2:]), nil
	}
	next, err := dates.AddDays(date, 1)
	if err != nil {
		return "", "", err
	}
	return next, "00" + clock[2:], nil
}

// fromGoogleEvent maps a provider item to the internal shape. Reads are
// tolerant: a missing summary becomes an empty title, an unknown category
// falls back to "other".
func fromGoogleEvent(item *calendar.Event) (*models.Event, error) {
	if item == nil || item.Start == nil {
		return nil, fmt.Errorf("event missing start")
	}

	event := &models.Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Category:    models.CategoryOther,
		Origin:      models.OriginGoogle,
		RemoteID:    item.Id,
	}

	if item.ExtendedProperties != nil {
		if c, ok := item.ExtendedProperties.Private["category"]; ok && c != "" {
			event.Category = c
		}
	}

	if item.Start.Date != "" {
		if !dates.Valid(item.Start.Date) {
			return nil, fmt.Errorf("malformed all-day start %q", item.Start.Date)
		}
		event.Date = item.Start.Date
		event.AllDay = true
	} else {
		date, clock, err := dates.SplitDateTime(item.Start.DateTime)
		if err != nil {
			return nil, err
		}
		event.Date = date
		event.Time = clock
	}

	if item.Created != "" {
		if t, err := time.Parse(time.RFC3339, item.Created); err == nil {
			event.CreatedAt = t
		}
	}
	if item.Updated != "" {
		if t, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			event.UpdatedAt = t
		}
	}

	return event, nil
}

// mapAPIError folds provider failures into the engine taxonomy. A 401 means
// the freshly-refreshed access token was still rejected, which is an auth
// failure, not a transient fault. Timeouts are transient.
func mapAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 401 {
			return fmt.Errorf("%w: %s", errs.ErrAuthExpired, apiErr.Message)
		}
		return &errs.ProviderError{Status: apiErr.Code, Message: apiErr.Message}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &errs.ProviderError{Message: "request timed out"}
	}
	return &errs.ProviderError{Message: err.Error()}
}
