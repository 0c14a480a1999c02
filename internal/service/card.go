package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/deppfellow/cardrelay/internal/config"
	"github.com/deppfellow/cardrelay/internal/errs"
	"github.com/deppfellow/cardrelay/internal/trello"
	"github.com/deppfellow/cardrelay/internal/upload"
	"github.com/deppfellow/cardrelay/internal/validation"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Board is the part of the board API the relay calls.
type Board interface {
	CreateCard(ctx context.Context, params trello.CardParams) (*trello.Card, error)
	ListCards(ctx context.Context) ([]trello.Card, error)
	AddLabel(ctx context.Context, cardID, labelID string) error
	AddAttachment(ctx context.Context, cardID string, a trello.Attachment) (*trello.AttachmentInfo, error)
}

// CardService turns a validated submission into board calls.
type CardService struct {
	board           Board
	lookupByToken   bool
	trustClientType bool
	formVariant     string
}

// NewCardService builds a CardService from the immutable config.
func NewCardService(cfg *config.Config, board Board) *CardService {
	return &CardService{
		board:           board,
		lookupByToken:   cfg.Trello.LookupByToken,
		trustClientType: cfg.Upload.TrustClientType,
		formVariant:     cfg.Upload.FormVariant,
	}
}

// Policy says what a step failure does to the rest of the sequence.
type Policy int

const (
	// Fatal failures stop the sequence and become the response.
	Fatal Policy = iota
	// BestEffort failures are logged as warnings and the sequence goes on.
	BestEffort
)

func (p Policy) String() string {
	if p == BestEffort {
		return "best_effort"
	}
	return "fatal"
}

// Run is the state threaded through the steps of one submission.
type Run struct {
	Submission *Submission
	// CardID is set by the create step and read by every later step.
	CardID string
}

// Step is one board call in the sequence.
type Step struct {
	Name   string
	Policy Policy
	Do     func(ctx context.Context, run *Run) error
}

// StepError is a fatal step failure: the response the client gets and the
// underlying cause, which is only logged.
type StepError struct {
	Step     string
	Response *errs.HTTPError
	Cause    error
}

func (e *StepError) Error() string {
	if e.Cause == nil {
		return e.Step + ": " + e.Response.Message
	}
	return e.Step + ": " + e.Response.Message + ": " + e.Cause.Error()
}

// Unwrap exposes both the response (for errors.As into *errs.HTTPError)
// and the cause.
func (e *StepError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Response}
	}
	return []error{e.Response, e.Cause}
}

func badGateway(step, message string, cause error) error {
	return &StepError{Step: step, Response: errs.NewBadGatewayError(message), Cause: cause}
}

// Relay runs the full sequence for a submission:
//
//	create card -> [attach label] -> [attach cover] -> attach files -> done
//
// The first fatal failure is returned. Nothing is rolled back: a card created
// before a later failure stays on the board with whatever was attached.
func (s *CardService) Relay(ctx context.Context, sub *Submission) error {
	run := &Run{Submission: sub}

	if err := Execute(ctx, s.Steps(sub), run); err != nil {
		return err
	}

	if txn := newrelic.FromContext(ctx); txn != nil {
		txn.AddAttribute("relay.card_id", run.CardID)
		txn.AddAttribute("relay.attachments", len(sub.Attachments))
	}

	zerolog.Ctx(ctx).Info().
		Str("card_id", run.CardID).
		Str("token", sub.Token).
		Int("attachments", len(sub.Attachments)).
		Bool("cover", sub.Cover != nil).
		Msg("card relayed")

	return nil
}

// Steps lists the board calls for a submission, in order.
func (s *CardService) Steps(sub *Submission) []Step {
	steps := []Step{{Name: "create_card", Policy: Fatal, Do: s.createCard}}

	if sub.LabelID != "" {
		steps = append(steps, Step{Name: "attach_label", Policy: BestEffort, Do: s.attachLabel})
	}

	if sub.Cover != nil {
		steps = append(steps, Step{Name: "attach_cover", Policy: Fatal, Do: s.attachCover})
	}

	for i, file := range sub.Attachments {
		steps = append(steps, Step{
			Name:   "attach_file",
			Policy: Fatal,
			Do:     s.attachFile(i+1, file, sub.CoverField != "" && file.Field == sub.CoverField),
		})
	}

	return steps
}

// Execute folds over the steps, stopping at the first fatal failure.
func Execute(ctx context.Context, steps []Step, run *Run) error {
	logger := zerolog.Ctx(ctx)

	for i, step := range steps {
		err := step.Do(ctx, run)
		if err == nil {
			logger.Debug().
				Str("step", step.Name).
				Int("index", i).
				Str("card_id", run.CardID).
				Msg("step completed")
			continue
		}

		if step.Policy == BestEffort {
			logger.Warn().
				Err(err).
				Str("step", step.Name).
				Str("card_id", run.CardID).
				Msg("best-effort step failed, continuing")
			continue
		}

		logger.Error().
			Err(err).
			Str("step", step.Name).
			Str("card_id", run.CardID).
			Int("board_status", trello.StatusCode(err)).
			Msg("step failed, aborting")
		return err
	}

	return nil
}

func (s *CardService) createCard(ctx context.Context, run *Run) error {
	sub := run.Submission

	card, err := s.board.CreateCard(ctx, trello.CardParams{
		Name: sub.CardName(),
		Desc: sub.Desc,
	})
	if err != nil && !errors.Is(err, trello.ErrMalformedResponse) {
		return badGateway("create_card", "unable to create card", err)
	}

	// The id from the create response is authoritative when usable.
	if card != nil && validation.IsValidTrelloID(card.ID) {
		run.CardID = card.ID
		return nil
	}

	if !s.lookupByToken {
		return badGateway("create_card", "unable to find card identifier", err)
	}

	id, lookupErr := s.lookupCardID(ctx, sub.Token)
	if lookupErr != nil {
		return badGateway("create_card", "unable to find card identifier", lookupErr)
	}

	run.CardID = id
	return nil
}

// lookupCardID scans the target list for the card carrying token.
func (s *CardService) lookupCardID(ctx context.Context, token string) (string, error) {
	cards, err := s.board.ListCards(ctx)
	if err != nil {
		return "", errors.Wrap(err, "list cards")
	}

	marker := "[" + token + "]"
	for _, card := range cards {
		if !strings.Contains(card.Name, marker) {
			continue
		}
		if !validation.IsValidTrelloID(card.ID) {
			return "", errors.Errorf("card for token %s has invalid id %q", token, card.ID)
		}
		return card.ID, nil
	}

	return "", errors.Errorf("no card carries token %s", token)
}

func (s *CardService) attachLabel(ctx context.Context, run *Run) error {
	labelID := run.Submission.LabelID
	if err := s.board.AddLabel(ctx, run.CardID, labelID); err != nil {
		return errors.Wrapf(err, "unable to attach label %s to card %s", labelID, run.CardID)
	}
	return nil
}

func (s *CardService) attachCover(ctx context.Context, run *Run) error {
	if _, err := s.board.AddAttachment(ctx, run.CardID, attachment(run.Submission.Cover, true)); err != nil {
		return badGateway("attach_cover", "unable to add cover to card", err)
	}
	return nil
}

func (s *CardService) attachFile(n int, file *upload.File, setCover bool) func(ctx context.Context, run *Run) error {
	return func(ctx context.Context, run *Run) error {
		if _, err := s.board.AddAttachment(ctx, run.CardID, attachment(file, setCover)); err != nil {
			return badGateway("attach_file", fmt.Sprintf("unable to upload attachment %d to card", n), err)
		}
		return nil
	}
}

func attachment(file *upload.File, setCover bool) trello.Attachment {
	return trello.Attachment{
		Path:        file.Path,
		Filename:    file.Filename,
		ContentType: file.ContentType,
		SetCover:    setCover,
	}
}
