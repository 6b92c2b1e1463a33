package api

import (
	"context"
	"encoding/json"
	"io"

	"docsum/analysis"
	"docsum/types"

	"github.com/gofiber/fiber/v2"
)

type Ingester interface {
	Ingest(ctx context.Context, data []byte, filename string) (*analysis.Result, error)
	Get(hash string) (json.RawMessage, error)
}

type SegmentSource interface {
	Segments(hash string) ([]types.Segment, error)
}

type DocumentHandler struct {
	ingest Ingester
	docs   SegmentSource
}

func NewDocumentHandler(ingest Ingester, docs SegmentSource) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, docs: docs}
}

// HandleAnalyze accepts a multipart "file" upload and returns its analysis.
func (h *DocumentHandler) HandleAnalyze(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return NewError(fiber.StatusBadRequest, "multipart field 'file' is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	res, err := h.ingest.Ingest(c.UserContext(), data, fileHeader.Filename)
	if err != nil {
		return err
	}

	return c.JSON(types.AnalyzeResponse{
		Hash:     res.Hash,
		Filename: fileHeader.Filename,
		Cached:   res.Cached,
		Pages:    res.Pages,
		Result:   res.Data,
	})
}

func (h *DocumentHandler) HandleGetAnalysis(c *fiber.Ctx) error {
	hash, err := hashParam(c)
	if err != nil {
		return err
	}
	raw, err := h.ingest.Get(hash)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

func (h *DocumentHandler) HandleSegments(c *fiber.Ctx) error {
	hash, err := hashParam(c)
	if err != nil {
		return err
	}
	segs, err := h.docs.Segments(hash)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"hash": hash, "count": len(segs), "segments": segs})
}

func hashParam(c *fiber.Ctx) (string, error) {
	params := types.HashParams{Hash: c.Params("hash")}
	if errs := types.Validate(&params); len(errs) > 0 {
		return "", ErrInvalidHash()
	}
	return params.Hash, nil
}
