package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/notemate/pkg/calendar"
	"github.com/harun/notemate/pkg/users"
	"github.com/rs/zerolog"
	"google.golang.org/api/gmail/v1"
)

const (
	gmailUser        = "me"
	gmailLookback    = 3 * 24 * time.Hour
	gmailMaxMessages = 50
)

// Message is the metadata of one Gmail message.
type Message struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
}

// MailReader lists a user's recent Gmail messages.
type MailReader struct {
	client *Client
	users  users.Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewMailReader creates a MailReader.
func NewMailReader(client *Client, store users.Store, logger zerolog.Logger) *MailReader {
	return &MailReader{
		client: client,
		users:  store,
		logger: logger.With().Str("component", "gmail").Logger(),
		now:    time.Now,
	}
}

// RecentQuery returns the Gmail search query for messages after the
// lookback window ending at now.
func RecentQuery(now time.Time) string {
	return "after:" + now.Add(-gmailLookback).Format("2006/01/02")
}

// Recent returns up to 50 messages from the last three days. Messages whose
// metadata cannot be fetched are skipped.
func (r *MailReader) Recent(ctx context.Context, userID string) ([]Message, error) {
	ts, err := r.client.tokenSourceFor(ctx, r.users, userID, r.logger)
	if errors.Is(err, users.ErrNotFound) {
		return nil, calendar.ErrNotLinked
	}
	if err != nil {
		return nil, err
	}

	svc, err := gmail.NewService(ctx, r.client.serviceOptions(ts)...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	list, err := svc.Users.Messages.List(gmailUser).
		Q(RecentQuery(r.now())).
		MaxResults(gmailMaxMessages).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	out := make([]Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		full, err := svc.Users.Messages.Get(gmailUser, m.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).
			Do()
		if err != nil {
			r.logger.Debug().Err(err).Str("message_id", m.Id).Msg("Skipping message")
			continue
		}

		msg := Message{ID: full.Id}
		if full.Payload != nil {
			for _, h := range full.Payload.Headers {
				switch h.Name {
				case "From":
					msg.From = h.Value
				case "Subject":
					msg.Subject = h.Value
				case "Date":
					msg.Date = h.Value
				}
			}
		}
		out = append(out, msg)
	}
	return out, nil
}
