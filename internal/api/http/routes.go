package httpapi

import (
	"context"
	"errors"
	"path"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/regional-weather/internal/tasks"
	"github.com/i474232898/regional-weather/internal/weather"
)

var validate = validator.New()

// TaskService submits ingestion batches and reports their state.
type TaskService interface {
	Submit(ctx context.Context, cities []string) (string, error)
	Status(ctx context.Context, id string) (tasks.TaskState, error)
}

// RegionReader serves the deduplicated records of a region.
type RegionReader interface {
	GetRegion(region string) ([]weather.WeatherRecord, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. resultRoot is
// the store directory that task result paths are reported under; empty for
// stores without one.
func RegisterRoutes(app *fiber.App, taskService TaskService, regions RegionReader, resultRoot string) {
	resultRoot = filepath.ToSlash(resultRoot)

	v1 := app.Group("/api/v1")

	v1.Post("/weather", func(c *fiber.Ctx) error {
		var req ingestRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		id, err := taskService.Submit(c.UserContext(), req.Cities)
		if err != nil {
			if errors.Is(err, tasks.ErrQueueFull) || errors.Is(err, tasks.ErrGatewayClosed) {
				return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to submit task")
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"task_id": id})
	})

	v1.Get("/tasks/:id", func(c *fiber.Ctx) error {
		state, err := taskService.Status(c.UserContext(), c.Params("id"))
		if err != nil {
			if errors.Is(err, tasks.ErrTaskNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "task not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load task status")
		}
		return c.JSON(newTaskResponse(state, resultRoot))
	})

	v1.Get("/results/:region", func(c *fiber.Ctx) error {
		region := c.Params("region")
		records, err := regions.GetRegion(region)
		if err != nil {
			if errors.Is(err, weather.ErrRegionNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather data for requested region")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read regional data")
		}

		return c.JSON(fiber.Map{
			"region":  region,
			"results": records,
		})
	})
}

// ingestRequest is the body of an ingestion submission.
type ingestRequest struct {
	Cities []string `json:"cities" validate:"max=100,dive,required,max=100"`
}

type taskResponse struct {
	TaskID     string               `json:"task_id"`
	Status     tasks.Status         `json:"status"`
	Attempts   int                  `json:"attempts"`
	ResultURLs []string             `json:"result_urls"`
	Manifest   *weather.RunManifest `json:"manifest,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func newTaskResponse(state tasks.TaskState, resultRoot string) taskResponse {
	resp := taskResponse{
		TaskID:     state.ID,
		Status:     state.Status,
		Attempts:   state.Attempts,
		ResultURLs: []string{},
		Manifest:   state.Manifest,
		Error:      state.Error,
	}
	if state.Manifest != nil {
		for _, p := range state.Manifest.Paths() {
			resp.ResultURLs = append(resp.ResultURLs, path.Join(resultRoot, p))
		}
	}
	return resp
}
