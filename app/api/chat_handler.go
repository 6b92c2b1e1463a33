package api

import (
	"context"
	"fmt"

	"docsum/types"

	"github.com/gofiber/fiber/v2"
)

type Asker interface {
	Query(ctx context.Context, hash, query string) (*types.ChatResponse, error)
}

type RequestHandler struct {
	engine Asker
	docs   SegmentSource
}

// NewRequestHandler takes a nil engine when the generation or embedding
// collaborators could not be built; chat then answers 503.
func NewRequestHandler(engine Asker, docs SegmentSource) *RequestHandler {
	return &RequestHandler{engine: engine, docs: docs}
}

func (h *RequestHandler) HandleChat(c *fiber.Ctx) error {
	hash, err := hashParam(c)
	if err != nil {
		return err
	}

	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if _, err := h.docs.Segments(hash); err != nil {
		return err
	}
	if h.engine == nil {
		return fmt.Errorf("%w: chat needs generation and embedding models", types.ErrNotConfigured)
	}

	resp, err := h.engine.Query(c.UserContext(), hash, params.Query)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
