package api

import (
	"github.com/gofiber/fiber/v2"
)

type CheckHandler struct {
	generation bool
	retrieval  bool
}

func NewCheckHandler(generation, retrieval bool) *CheckHandler {
	return &CheckHandler{generation: generation, retrieval: retrieval}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"result":     "ok",
		"generation": h.generation,
		"retrieval":  h.retrieval,
	})
}
