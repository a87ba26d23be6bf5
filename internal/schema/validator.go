// Package schema validates events before they are published.
package schema

import (
	"errors"
	"fmt"

	"voice-search-assistant/internal/models"
)

var (
	ErrMissingEventType = errors.New("event type is required")
	ErrMissingSession   = errors.New("session id is required")
	ErrUnknownEvent     = errors.New("unknown event")
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the required fields of a known event payload.
func (v *Validator) Validate(event any) error {
	switch ev := event.(type) {
	case models.TranscriptFinal:
		return v.check(ev.EventType, models.EventTranscriptFinal, ev.SessionID, func() error {
			if ev.Text == "" {
				return errors.New("transcript text is required")
			}
			return nil
		})
	case *models.TranscriptFinal:
		return v.Validate(*ev)
	case models.MessageCompleted:
		return v.check(ev.EventType, models.EventMessageCompleted, ev.SessionID, func() error {
			if ev.Message.ID == "" || ev.Message.Role == "" {
				return errors.New("message id and role are required")
			}
			return nil
		})
	case *models.MessageCompleted:
		return v.Validate(*ev)
	case models.SubmissionResolved:
		return v.check(ev.EventType, models.EventSubmissionResolved, ev.SessionID, func() error {
			if ev.Query == "" || ev.Decision == "" {
				return errors.New("query and decision are required")
			}
			return nil
		})
	case *models.SubmissionResolved:
		return v.Validate(*ev)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}
}

func (v *Validator) check(got, want, sessionID string, extra func() error) error {
	if got == "" {
		return ErrMissingEventType
	}
	if got != want {
		return fmt.Errorf("event type %q, expected %q", got, want)
	}
	if sessionID == "" {
		return ErrMissingSession
	}
	return extra()
}
