package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/payflowhq/payflow/app/repository"
	"github.com/payflowhq/payflow/internal/pkg/jobqueue"
)

// HandleAdminQueueStats reports queue depths and lifetime job counters.
func HandleAdminQueueStats(c *fiber.Ctx) error {
	queue := jobqueue.GetManager().GetQueue()
	ctx := c.Context()

	pending, err := queue.GetQueueSize(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to read queue size"})
	}
	processing, err := queue.GetProcessingSize(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to read processing size"})
	}
	stats, err := queue.GetJobStats(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to read job stats"})
	}

	transactionCount, _ := repository.GetGlobalFactory().GetTransactionRepository().Count()

	return c.JSON(fiber.Map{
		"queue": fiber.Map{
			"pending":    pending,
			"processing": processing,
		},
		"jobs":         stats,
		"transactions": transactionCount,
		"running":      jobqueue.GetManager().IsRunning(),
	})
}

// HandleAdminFailedWebhooks lists events that exhausted their retry budget.
func HandleAdminFailedWebhooks(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)

	events, err := webhookService.ListFailed(offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to list webhook events"})
	}

	out := make([]fiber.Map, 0, len(events))
	for _, e := range events {
		out = append(out, fiber.Map{
			"id":                e.ID,
			"provider_event_id": e.ProviderEventID,
			"event_type":        e.EventType,
			"status":            e.Status,
			"retry_count":       e.RetryCount,
			"last_error":        e.LastError,
			"created_at":        e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"events": out, "offset": offset, "limit": limit})
}

// HandleAdminRetryWebhook resets a failed event and queues another attempt.
func HandleAdminRetryWebhook(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_error", "message": "Event id must be numeric"})
	}

	if err := webhookService.Retry(c.Context(), uint(id)); err != nil {
		if _, code := errorStatus(err); code == "validation_error" {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_error", "message": err.Error()})
		}
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"retried": true})
}
