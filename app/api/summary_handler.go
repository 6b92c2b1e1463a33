package api

import (
	"context"
	"fmt"

	"docsum/export"
	"docsum/types"

	"github.com/gofiber/fiber/v2"
)

type Summarizer interface {
	Summarize(ctx context.Context, hash string, params types.SummaryParams) (*types.SummaryResponse, error)
	State(hash string) (*types.JobState, error)
	Record(hash string) (types.SummaryRecord, error)
}

type SummaryHandler struct {
	svc  Summarizer
	docs SegmentSource
}

func NewSummaryHandler(svc Summarizer, docs SegmentSource) *SummaryHandler {
	return &SummaryHandler{svc: svc, docs: docs}
}

// HandleSummarize runs or resumes the job. It blocks until the run ends.
func (h *SummaryHandler) HandleSummarize(c *fiber.Ctx) error {
	hash, err := hashParam(c)
	if err != nil {
		return err
	}

	var params types.SummaryParams
	if len(c.Body()) > 0 {
		if c.BodyParser(&params) != nil {
			return ErrBadRequest()
		}
	}

	resp, err := h.svc.Summarize(c.UserContext(), hash, params)
	if err != nil {
		if resp != nil {
			// extraction or checkpoint failure: report the failed status
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"hash":   hash,
				"status": resp.Status,
				"error":  err.Error(),
			})
		}
		return err
	}
	return c.JSON(resp)
}

func (h *SummaryHandler) HandleStatus(c *fiber.Ctx) error {
	hash, err := hashParam(c)
	if err != nil {
		return err
	}
	st, err := h.svc.State(hash)
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (h *SummaryHandler) HandleExport(c *fiber.Ctx) error {
	hash, err := hashParam(c)
	if err != nil {
		return err
	}
	record, err := h.svc.Record(hash)
	if err != nil {
		return err
	}
	segs, err := h.docs.Segments(hash)
	if err != nil {
		segs = nil
	}

	data, err := export.SummariesXLSX(record, segs)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s_summaries.xlsx"`, hash[:12]))
	return c.Send(data)
}
