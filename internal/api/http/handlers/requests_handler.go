package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-service/internal/api/dto"
	"github.com/spec-kit/marketplace-service/internal/service"
)

// RequestsHandler manages engagement request endpoints.
type RequestsHandler struct {
	service *service.RequestService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requestService *service.RequestService) *RequestsHandler {
	return &RequestsHandler{service: requestService}
}

// Create POST /requests.
func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateRequestRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	created, err := h.service.Create(c.UserContext(), actor, req.FreelancerID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "Request sent", dto.NewRequestResponse(created))
}

// ListSent GET /requests/sent.
func (h *RequestsHandler) ListSent(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	requests, err := h.service.ListSent(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Requests fetched", dto.NewRequestList(requests))
}

// ListReceived GET /requests/received.
func (h *RequestsHandler) ListReceived(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	requests, err := h.service.ListReceived(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Requests fetched", dto.NewRequestList(requests))
}

// Respond POST /requests/:id/respond.
func (h *RequestsHandler) Respond(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.RespondRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	updated, err := h.service.Respond(c.UserContext(), actor, c.Params("id"), *req.Accept)
	if err != nil {
		return err
	}
	message := "Request rejected"
	if *req.Accept {
		message = "Request accepted"
	}
	return respond(c, http.StatusOK, message, dto.NewRequestResponse(updated))
}

// Cancel POST /requests/:id/cancel.
func (h *RequestsHandler) Cancel(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	updated, err := h.service.Cancel(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Request cancelled", dto.NewRequestResponse(updated))
}
