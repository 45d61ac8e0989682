// Package web provides the HTTP surface of the local editor API: draft CRUD,
// graph validation, metrics, execution ordering and a dry-run event stream.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/nodeloom/nodeloom/pkg/drafts"
	"github.com/nodeloom/nodeloom/pkg/graph"
	"github.com/nodeloom/nodeloom/pkg/models"
	"github.com/nodeloom/nodeloom/pkg/wire"
)

type APIHandlers struct {
	drafts    drafts.Repository
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(repo drafts.Repository, validate *validator.Validate, logger *slog.Logger) *APIHandlers {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandlers{
		drafts:    repo,
		validator: validate,
		logger:    logger.With("module", "web"),
	}
}

// Register mounts every editor API route on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	d := app.Group("/drafts")
	d.Get("/", h.ListDrafts)
	d.Get("/:id", h.GetDraft)
	d.Put("/:id", h.SaveDraft)
	d.Delete("/:id", h.DeleteDraft)
	d.Post("/:id/execute/stream", h.ExecuteDraftStream)

	w := app.Group("/workflows")
	w.Post("/validate", h.ValidateWorkflow)
	w.Post("/metrics", h.WorkflowMetrics)
	w.Post("/sort", h.SortWorkflow)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) ListDrafts(c fiber.Ctx) error {
	ids, err := h.drafts.List(c.Context())
	if err != nil {
		return handleDraftError(c, err)
	}

	if ids == nil {
		ids = []string{}
	}

	return c.JSON(fiber.Map{"drafts": ids})
}

func (h *APIHandlers) GetDraft(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Draft ID is required")
	}

	dto, err := h.drafts.Load(c.Context(), id)
	if err != nil {
		return handleDraftError(c, err)
	}

	if dto == nil {
		return notFound(c, "Draft not found")
	}

	return c.JSON(dto)
}

func (h *APIHandlers) SaveDraft(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Draft ID is required")
	}

	// Schema-check the raw body before binding so malformed graphs are
	// rejected with the exact violation.
	if err := wire.ValidateBlob(c.Body()); err != nil {
		return badRequest(c, err.Error())
	}

	var req SaveDraftRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	dto := models.WorkflowDTO{
		ID:       id,
		Name:     req.Name,
		Nodes:    req.Nodes,
		Edges:    req.Edges,
		Viewport: req.Viewport,
		Tags:     req.Tags,
	}

	if err := h.drafts.Save(c.Context(), id, dto); err != nil {
		return handleDraftError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto)
}

func (h *APIHandlers) DeleteDraft(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Draft ID is required")
	}

	if err := h.drafts.Clear(c.Context(), id); err != nil {
		return handleDraftError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	var req GraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	errs := graph.ValidateWorkflow(req.nodes(), req.Edges)

	return c.JSON(ValidateResponse{Valid: len(errs) == 0, Errors: errs})
}

func (h *APIHandlers) WorkflowMetrics(c fiber.Ctx) error {
	var req GraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	return c.JSON(graph.ComputeMetrics(req.nodes(), req.Edges))
}

func (h *APIHandlers) SortWorkflow(c fiber.Ctx) error {
	var req GraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	order, ok := graph.TopologicalSort(req.nodes(), req.Edges)
	if !ok {
		return unprocessable(c, "workflow contains cycles")
	}

	return c.JSON(SortResponse{Order: order})
}

// ExecuteDraftStream runs the stored draft through the dry-run executor and
// streams the resulting events.
func (h *APIHandlers) ExecuteDraftStream(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Draft ID is required")
	}

	dto, err := h.drafts.Load(c.Context(), id)
	if err != nil {
		return handleDraftError(c, err)
	}

	if dto == nil {
		return notFound(c, "Draft not found")
	}

	nodes, edges, _ := wire.Deserialize(*dto)

	body, err := dryRun(nodes, edges)
	if err != nil {
		return unprocessable(c, err.Error())
	}

	h.logger.Info("dry run streamed", "draft_id", id, "nodes", len(nodes))

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	return c.Send(body)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	if _, err := h.drafts.List(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}
