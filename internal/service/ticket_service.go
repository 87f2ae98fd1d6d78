package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/parkwise/pcn-service/internal/domain"
	"github.com/parkwise/pcn-service/internal/events"
	"github.com/parkwise/pcn-service/internal/lifecycle"
	"github.com/parkwise/pcn-service/internal/reminder"
	"github.com/parkwise/pcn-service/internal/repository"
	apperrors "github.com/parkwise/pcn-service/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows: registration, correspondence
// ingestion through the lifecycle resolver, amount derivation and reminder
// bootstrap.
type TicketService struct {
	tickets        repository.TicketRepository
	vehicles       repository.VehicleRepository
	correspondence repository.CorrespondenceRepository
	increases      repository.PriceIncreaseRepository
	reminders      *reminder.Scheduler
	dispatcher     events.Dispatcher
	logger         *zap.Logger
	now            func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo         repository.TicketRepository
	VehicleRepo        repository.VehicleRepository
	CorrespondenceRepo repository.CorrespondenceRepository
	PriceIncreaseRepo  repository.PriceIncreaseRepository
	Reminders          *reminder.Scheduler
	Dispatcher         events.Dispatcher
	Logger             *zap.Logger
	Now                func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	VehicleID         string
	Reference         string
	IssuerName        string
	IssuerType        domain.IssuerType
	ContraventionCode string
	IssuedAt          time.Time
	InitialAmount     int64
	Tier              domain.Tier
}

// CorrespondenceInput describes an ingested letter. Amount is optional: when
// the letter implies a new total (e.g. a charge certificate) it carries the
// absolute amount and its effective date.
type CorrespondenceInput struct {
	Type              domain.CorrespondenceType
	SentAt            time.Time
	Amount            *int64
	AmountEffectiveAt *time.Time
}

// TicketDetail is a ticket with its derived amount and related records.
type TicketDetail struct {
	Ticket         *domain.Ticket
	AmountDue      int64
	Correspondence []domain.Correspondence
	PriceIncreases []domain.PriceIncrease
	Reminders      []domain.Reminder
}

// TicketWithAmount pairs a ticket with its current amount due.
type TicketWithAmount struct {
	Ticket    domain.Ticket
	AmountDue int64
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		tickets:        deps.TicketRepo,
		vehicles:       deps.VehicleRepo,
		correspondence: deps.CorrespondenceRepo,
		increases:      deps.PriceIncreaseRepo,
		reminders:      deps.Reminders,
		dispatcher:     deps.Dispatcher,
		logger:         deps.Logger,
		now:            now,
	}
}

// RegisterVehicle adds a vehicle to the requester's account.
func (s *TicketService) RegisterVehicle(ctx context.Context, userID, plate, make, colour string) (*domain.Vehicle, error) {
	plate = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(plate), " ", ""))
	if plate == "" {
		return nil, apperrors.NewValidationError("plate required", nil)
	}
	vehicle := &domain.Vehicle{
		UserID: userID,
		Plate:  plate,
		Make:   strings.TrimSpace(make),
		Colour: strings.TrimSpace(colour),
	}
	if err := s.vehicles.Create(ctx, vehicle); err != nil {
		return nil, err
	}
	return vehicle, nil
}

// CreateTicket records a new PCN against one of the requester's vehicles and
// bootstraps its deadline reminders.
func (s *TicketService) CreateTicket(ctx context.Context, userID string, input TicketCreateInput) (*domain.Ticket, error) {
	if input.Reference == "" || input.IssuerName == "" {
		return nil, apperrors.NewValidationError("reference and issuer_name required", nil)
	}
	if input.InitialAmount < 0 {
		return nil, apperrors.NewValidationError("initial_amount must not be negative", nil)
	}
	if input.IssuedAt.IsZero() {
		return nil, apperrors.NewValidationError("issued_at required", nil)
	}
	if _, err := s.ownedVehicle(ctx, userID, input.VehicleID); err != nil {
		return nil, err
	}

	tier := input.Tier
	if tier == "" {
		tier = domain.TierFree
	}
	ticket := &domain.Ticket{
		VehicleID:         input.VehicleID,
		Reference:         strings.TrimSpace(input.Reference),
		IssuerName:        strings.TrimSpace(input.IssuerName),
		IssuerType:        input.IssuerType,
		ContraventionCode: strings.TrimSpace(input.ContraventionCode),
		IssuedAt:          input.IssuedAt,
		InitialAmount:     input.InitialAmount,
		Status:            domain.TicketStatusInitial,
		Tier:              tier,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	if s.reminders != nil {
		if _, err := s.reminders.EnsureReminders(ctx, ticket); err != nil {
			s.logger.Error("failed to bootstrap reminders",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		UserID:   userID,
		Payload: events.TicketCreatedPayload{
			Reference:  ticket.Reference,
			IssuerName: ticket.IssuerName,
			IssuerType: ticket.IssuerType,
			IssuedAt:   ticket.IssuedAt,
			Amount:     ticket.InitialAmount,
		},
	})
	return ticket, nil
}

// ListTickets returns the requester's tickets with derived amounts.
func (s *TicketService) ListTickets(ctx context.Context, userID string, limit, offset int) ([]TicketWithAmount, error) {
	tickets, err := s.tickets.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	now := s.now()
	result := make([]TicketWithAmount, 0, len(tickets))
	for i := range tickets {
		increases, err := s.increases.ListByTicket(ctx, tickets[i].ID)
		if err != nil {
			return nil, err
		}
		result = append(result, TicketWithAmount{
			Ticket:    tickets[i],
			AmountDue: lifecycle.AmountDue(&tickets[i], increases, now),
		})
	}
	return result, nil
}

// GetTicket fetches a ticket with its derived amount and history, ensuring
// ownership.
func (s *TicketService) GetTicket(ctx context.Context, userID, ticketID string) (*TicketDetail, error) {
	ticket, err := s.ownedTicket(ctx, userID, ticketID)
	if err != nil {
		return nil, err
	}
	increases, err := s.increases.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	letters, err := s.correspondence.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	var reminders []domain.Reminder
	if s.reminders != nil {
		reminders, err = s.reminders.ListForTicket(ctx, ticket.ID)
		if err != nil {
			return nil, err
		}
	}
	return &TicketDetail{
		Ticket:         ticket,
		AmountDue:      lifecycle.AmountDue(ticket, increases, s.now()),
		Correspondence: letters,
		PriceIncreases: increases,
		Reminders:      reminders,
	}, nil
}

// RecordCorrespondence ingests a classified letter: stores it, resolves the
// status transition under last-update-wins, records any implied price
// increase and re-evaluates reminders. Status and amount tracks are
// independent: a letter too old to change status still contributes its
// price increase.
func (s *TicketService) RecordCorrespondence(ctx context.Context, userID, ticketID string, input CorrespondenceInput) (*domain.Correspondence, bool, error) {
	if input.Type == "" {
		return nil, false, apperrors.NewValidationError("type required", nil)
	}
	if input.SentAt.IsZero() {
		return nil, false, apperrors.NewValidationError("sent_at required", nil)
	}
	if input.Amount != nil && *input.Amount < 0 {
		return nil, false, apperrors.NewValidationError("amount must not be negative", nil)
	}
	ticket, err := s.ownedTicket(ctx, userID, ticketID)
	if err != nil {
		return nil, false, err
	}

	corr := &domain.Correspondence{
		TicketID: ticket.ID,
		Type:     input.Type,
		SentAt:   input.SentAt,
	}
	if err := s.correspondence.Create(ctx, corr); err != nil {
		return nil, false, err
	}

	applied, err := s.applyTransition(ctx, ticket, input.Type, input.SentAt)
	if err != nil {
		return nil, false, err
	}

	if input.Amount != nil {
		effectiveAt := input.SentAt
		if input.AmountEffectiveAt != nil {
			effectiveAt = *input.AmountEffectiveAt
		}
		inc := &domain.PriceIncrease{
			TicketID:    ticket.ID,
			Amount:      *input.Amount,
			EffectiveAt: effectiveAt,
			Source:      domain.PriceSourceCorrespondence,
		}
		if err := s.increases.Create(ctx, inc); err != nil {
			return nil, false, err
		}
		s.publishEvent(ctx, events.Event{
			Type:     events.EventPriceIncreaseRecorded,
			TicketID: ticket.ID,
			UserID:   userID,
			Payload: events.PriceIncreaseRecordedPayload{
				Amount:      inc.Amount,
				EffectiveAt: inc.EffectiveAt,
				Source:      inc.Source,
			},
		})
	}

	if s.reminders != nil {
		if _, err := s.reminders.EnsureReminders(ctx, ticket); err != nil {
			s.logger.Error("reminder re-evaluation failed",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventCorrespondenceRecorded,
		TicketID: ticket.ID,
		UserID:   userID,
		Payload: events.CorrespondenceRecordedPayload{
			CorrespondenceID: corr.ID,
			Type:             corr.Type,
			SentAt:           corr.SentAt,
			StatusApplied:    applied,
		},
	})
	return corr, applied, nil
}

// AddPriceIncrease records a manual override of the amount owed.
func (s *TicketService) AddPriceIncrease(ctx context.Context, userID, ticketID string, amount int64, effectiveAt time.Time) (*domain.PriceIncrease, error) {
	if amount < 0 {
		return nil, apperrors.NewValidationError("amount must not be negative", nil)
	}
	if effectiveAt.IsZero() {
		return nil, apperrors.NewValidationError("effective_at required", nil)
	}
	ticket, err := s.ownedTicket(ctx, userID, ticketID)
	if err != nil {
		return nil, err
	}
	inc := &domain.PriceIncrease{
		TicketID:    ticket.ID,
		Amount:      amount,
		EffectiveAt: effectiveAt,
		Source:      domain.PriceSourceManual,
	}
	if err := s.increases.Create(ctx, inc); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventPriceIncreaseRecorded,
		TicketID: ticket.ID,
		UserID:   userID,
		Payload: events.PriceIncreaseRecordedPayload{
			Amount:      inc.Amount,
			EffectiveAt: inc.EffectiveAt,
			Source:      inc.Source,
		},
	})
	return inc, nil
}

// applyTransition runs the resolver and, when an advance is implied, applies
// it as a conditional write. A version conflict means another ingestion ran
// concurrently; the resolver's ordering rule makes re-application safe to
// skip, because whichever write won carries a date at least as new.
func (s *TicketService) applyTransition(ctx context.Context, ticket *domain.Ticket, corrType domain.CorrespondenceType, sentAt time.Time) (bool, error) {
	res := lifecycle.Resolve(ticket.Status, ticket.StatusUpdatedAt, ticket.IssuedAt, corrType, sentAt)
	if !res.Applied {
		return false, nil
	}

	err := s.tickets.UpdateStatus(ctx, ticket.ID, res.NewStatus, sentAt, ticket.StatusUpdatedAt)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.logger.Info("status transition lost to concurrent update",
				zap.String("ticket_id", ticket.ID),
				zap.String("type", string(corrType)))
			return false, apperrors.NewConflict("ticket status changed concurrently, re-read and retry", nil)
		}
		return false, err
	}

	oldStatus := ticket.Status
	ticket.Status = res.NewStatus
	at := sentAt
	ticket.StatusUpdatedAt = &at

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: res.NewStatus,
			Trigger:   corrType,
			SentAt:    sentAt,
		},
	})
	return true, nil
}

func (s *TicketService) ownedVehicle(ctx context.Context, userID, vehicleID string) (*domain.Vehicle, error) {
	vehicle, err := s.vehicles.GetByID(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("vehicle", nil)
		}
		return nil, err
	}
	if vehicle.UserID != userID {
		return nil, apperrors.NewForbidden("not the owner of this vehicle")
	}
	return vehicle, nil
}

func (s *TicketService) ownedTicket(ctx context.Context, userID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, err
	}
	if _, err := s.ownedVehicle(ctx, userID, ticket.VehicleID); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
