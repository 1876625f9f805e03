package history

import (
	"errors"

	"content-history/core/git"
	"content-history/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the history feature.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, logger: service.logger}
}

// RegisterRoutes registers the history routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/history")
	group.Get("/commits", h.HandleListCommits)
	group.Get("/commits/:hash", h.HandleGetCommit)
	group.Get("/plan", h.HandlePlan)
	group.Post("/undo", h.HandleUndo)
	group.Post("/rollback", h.HandleRollback)
	group.Post("/synchronize", h.HandleSynchronize)
}

// HandleListCommits returns the commit log. The optional range query
// parameter takes a git revision range.
func (h *Handler) HandleListCommits(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	commits, err := h.service.Commits(c.Context(), c.Query("range"))
	if err != nil {
		l.Error("Listing commits failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if commits == nil {
		commits = []git.Commit{}
	}
	return c.JSON(commits)
}

// HandleGetCommit returns one commit with its changed files and actions.
func (h *Handler) HandleGetCommit(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	commit, err := h.service.Commit(c.Context(), c.Params("hash"))
	if errors.Is(err, git.ErrUnknownCommit) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		l.Error("Reading commit failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"commit":  commit,
		"actions": commit.Actions(),
	})
}

// HandlePlan returns the actions a synchronization would perform. Types are
// taken from repeated type query parameters.
func (h *Handler) HandlePlan(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	plans, err := h.service.Plan(c.Context(), queryValues(c, "type"))
	if err != nil {
		l.Error("Planning failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(plans)
}

type undoRequest struct {
	Commits []string `json:"commits"`
}

// HandleUndo reverts the commits in the request body.
func (h *Handler) HandleUndo(c *fiber.Ctx) error {
	var req undoRequest
	if err := c.BodyParser(&req); err != nil || len(req.Commits) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must contain a non-empty commits list",
		})
	}
	return h.respond(c, h.service.Undo(c.Context(), req.Commits))
}

type rollbackRequest struct {
	Commit string `json:"commit"`
}

// HandleRollback restores the tree of the commit in the request body.
func (h *Handler) HandleRollback(c *fiber.Ctx) error {
	var req rollbackRequest
	if err := c.BodyParser(&req); err != nil || req.Commit == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must contain a commit",
		})
	}
	return h.respond(c, h.service.Rollback(c.Context(), req.Commit))
}

type synchronizeRequest struct {
	Types []string `json:"types"`
}

// HandleSynchronize reconciles the database with the current tree.
func (h *Handler) HandleSynchronize(c *fiber.Ctx) error {
	var req synchronizeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}
	return h.respond(c, h.service.Synchronize(c.Context(), req.Types))
}

// respond writes an outcome with the status of its final state.
func (h *Handler) respond(c *fiber.Ctx, out *Outcome) error {
	l := logger.WithRayID(h.logger, c)

	status := fiber.StatusOK
	switch out.State {
	case StateFailedGit:
		status = fiber.StatusConflict
	case StateFailedIntegrity:
		status = fiber.StatusUnprocessableEntity
	}
	if !out.Succeeded() {
		l.Warn("History operation failed",
			zap.String("operation", string(out.Operation)),
			zap.String("state", string(out.State)),
			zap.Error(out.Err()))
	}
	return c.Status(status).JSON(out)
}

func queryValues(c *fiber.Ctx, key string) []string {
	var values []string
	for _, v := range c.Context().QueryArgs().PeekMulti(key) {
		values = append(values, string(v))
	}
	return values
}
