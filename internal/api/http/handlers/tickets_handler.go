package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/parkwise/pcn-service/internal/api/dto"
	"github.com/parkwise/pcn-service/internal/auth"
	"github.com/parkwise/pcn-service/internal/domain"
	"github.com/parkwise/pcn-service/internal/service"
	apperrors "github.com/parkwise/pcn-service/pkg/util/errorutil"
)

// TicketsHandler exposes vehicle and ticket endpoints.
type TicketsHandler struct {
	tickets *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService}
}

// RegisterVehicle handles POST /vehicles.
func (h *TicketsHandler) RegisterVehicle(c *fiber.Ctx) error {
	principal, err := requireUser(c)
	if err != nil {
		return err
	}

	var req dto.RegisterVehicleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	vehicle, err := h.tickets.RegisterVehicle(c.UserContext(), principal.User.ID, req.Plate, req.Make, req.Colour)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.VehicleResponse{
		ID:        vehicle.ID,
		Plate:     vehicle.Plate,
		Make:      vehicle.Make,
		Colour:    vehicle.Colour,
		CreatedAt: vehicle.CreatedAt,
	}})
}

// CreateTicket handles POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := requireUser(c)
	if err != nil {
		return err
	}

	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.tickets.CreateTicket(c.UserContext(), principal.User.ID, service.TicketCreateInput{
		VehicleID:         req.VehicleID,
		Reference:         req.Reference,
		IssuerName:        req.IssuerName,
		IssuerType:        req.IssuerType,
		ContraventionCode: req.ContraventionCode,
		IssuedAt:          req.IssuedAt,
		InitialAmount:     req.InitialAmount,
		Tier:              req.Tier,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket, ticket.InitialAmount)})
}

// ListTickets handles GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := requireUser(c)
	if err != nil {
		return err
	}

	limit := parseInt(c.Query("limit"), 50)
	offset := parseInt(c.Query("offset"), 0)

	tickets, err := h.tickets.ListTickets(c.UserContext(), principal.User.ID, limit, offset)
	if err != nil {
		return err
	}

	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i].Ticket, tickets[i].AmountDue))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket handles GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := requireUser(c)
	if err != nil {
		return err
	}

	detail, err := h.tickets.GetTicket(c.UserContext(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// RecordCorrespondence handles POST /tickets/:id/correspondence.
func (h *TicketsHandler) RecordCorrespondence(c *fiber.Ctx) error {
	principal, err := requireUser(c)
	if err != nil {
		return err
	}

	var req dto.RecordCorrespondenceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	corr, statusChanged, err := h.tickets.RecordCorrespondence(c.UserContext(), principal.User.ID, c.Params("id"), service.CorrespondenceInput{
		Type:              req.Type,
		SentAt:            req.SentAt,
		Amount:            req.Amount,
		AmountEffectiveAt: req.AmountEffectiveAt,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"correspondence": dto.CorrespondenceResponse{
			ID:        corr.ID,
			Type:      corr.Type,
			SentAt:    corr.SentAt,
			CreatedAt: corr.CreatedAt,
		},
		"status_changed": statusChanged,
	}})
}

// AddPriceIncrease handles POST /tickets/:id/price-increases.
func (h *TicketsHandler) AddPriceIncrease(c *fiber.Ctx) error {
	principal, err := requireUser(c)
	if err != nil {
		return err
	}

	var req dto.AddPriceIncreaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	increase, err := h.tickets.AddPriceIncrease(c.UserContext(), principal.User.ID, c.Params("id"), req.Amount, req.EffectiveAt)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": priceIncreaseResponse(increase)})
}

func requireUser(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket, amountDue int64) dto.TicketSummary {
	return dto.TicketSummary{
		ID:                ticket.ID,
		VehicleID:         ticket.VehicleID,
		Reference:         ticket.Reference,
		IssuerName:        ticket.IssuerName,
		IssuerType:        ticket.IssuerType,
		ContraventionCode: ticket.ContraventionCode,
		IssuedAt:          ticket.IssuedAt,
		Status:            ticket.Status,
		StatusUpdatedAt:   ticket.StatusUpdatedAt,
		AmountDue:         amountDue,
		Tier:              ticket.Tier,
		CreatedAt:         ticket.CreatedAt,
		UpdatedAt:         ticket.UpdatedAt,
	}
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	resp := dto.TicketDetailResponse{
		TicketSummary: ticketSummary(detail.Ticket, detail.AmountDue),
		InitialAmount: detail.Ticket.InitialAmount,
	}
	resp.Correspondence = make([]dto.CorrespondenceResponse, 0, len(detail.Correspondence))
	for _, corr := range detail.Correspondence {
		resp.Correspondence = append(resp.Correspondence, dto.CorrespondenceResponse{
			ID:        corr.ID,
			Type:      corr.Type,
			SentAt:    corr.SentAt,
			CreatedAt: corr.CreatedAt,
		})
	}
	resp.PriceIncreases = make([]dto.PriceIncreaseResponse, 0, len(detail.PriceIncreases))
	for i := range detail.PriceIncreases {
		resp.PriceIncreases = append(resp.PriceIncreases, priceIncreaseResponse(&detail.PriceIncreases[i]))
	}
	resp.Reminders = make([]dto.ReminderResponse, 0, len(detail.Reminders))
	for _, rem := range detail.Reminders {
		resp.Reminders = append(resp.Reminders, dto.ReminderResponse{
			ID:      rem.ID,
			Type:    rem.Type,
			Channel: rem.Channel,
			SendAt:  rem.SendAt,
			SentAt:  rem.SentAt,
		})
	}
	return resp
}

func priceIncreaseResponse(increase *domain.PriceIncrease) dto.PriceIncreaseResponse {
	return dto.PriceIncreaseResponse{
		ID:          increase.ID,
		Amount:      increase.Amount,
		EffectiveAt: increase.EffectiveAt,
		Source:      increase.Source,
		CreatedAt:   increase.CreatedAt,
	}
}
