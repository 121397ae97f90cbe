package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"dinostats/internal/stats"
)

// KeyedSnapshot is a partial snapshot and the period it belongs to.
type KeyedSnapshot struct {
	Key      string          `json:"key"`
	Snapshot json.RawMessage `json:"snapshot"`
}

type AggregateRequest struct {
	Snapshots []KeyedSnapshot `json:"snapshots"`
}

type SnapshotsResponse struct {
	Snapshots []*stats.Snapshot `json:"snapshots"`
}

// Aggregate merges the submitted partial snapshots per period key and returns
// the results with ratios computed. Nothing is stored.
func (h *Handler) Aggregate(c *fiber.Ctx) error {
	var req AggregateRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, errInvalidRequest)
	}

	aggregator := stats.NewAggregator()
	for i, item := range req.Snapshots {
		key, err := canonicalKey(item.Key)
		if err != nil {
			h.logger.Debug("Rejected aggregate item", slog.Int("index", i), slog.Any("error", err))
			return badRequest(c, errInvalidKey)
		}
		partial, err := stats.DecodeCurrent(item.Snapshot)
		if err != nil {
			h.logger.Debug("Rejected aggregate item", slog.Int("index", i), slog.Any("error", err))
			return badRequest(c, errInvalidRequest)
		}
		aggregator.Add(key, partial)
	}

	return c.JSON(SnapshotsResponse{Snapshots: nonNil(aggregator.Finalize())})
}

// Ingest merges an array of partial snapshots into the stored snapshot of a period.
func (h *Handler) Ingest(c *fiber.Ctx) error {
	key, err := canonicalKey(c.Params("key"))
	if err != nil {
		return badRequest(c, errInvalidKey)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(c.Body(), &items); err != nil {
		return badRequest(c, errInvalidRequest)
	}

	partials := make([]*stats.Snapshot, 0, len(items))
	for _, item := range items {
		partial, err := stats.DecodeCurrent(item)
		if err != nil {
			h.logger.Debug("Rejected partial snapshot", slog.String("key", key), slog.Any("error", err))
			return badRequest(c, errInvalidRequest)
		}
		partials = append(partials, partial)
	}

	merged, err := stats.Ingest(c.UserContext(), h.store, key, partials...)
	if errors.Is(err, stats.ErrConflict) {
		h.logger.Warn("Snapshot update conflict", slog.String("key", key))
		return respondError(c, http.StatusConflict, "CONFLICT", errConflict)
	}
	if err != nil {
		h.logger.Error("Failed to ingest snapshots", slog.String("key", key), slog.Any("error", err))
		return respondError(c, http.StatusInternalServerError, "STORAGE_ERROR", errStorage)
	}

	h.logger.Info("Ingested snapshots", slog.String("key", key), slog.Int("count", len(partials)))
	return c.JSON(merged)
}

// Show returns the stored snapshot of a period. It honors If-None-Match.
func (h *Handler) Show(c *fiber.Ctx) error {
	key, err := canonicalKey(c.Params("key"))
	if err != nil {
		return badRequest(c, errInvalidKey)
	}

	snapshot, err := h.store.Load(c.UserContext(), key)
	if errors.Is(err, stats.ErrNotFound) {
		return respondError(c, http.StatusNotFound, "NOT_FOUND", errSnapshotMissing)
	}
	if err != nil {
		h.logger.Error("Failed to load snapshot", slog.String("key", key), slog.Any("error", err))
		return respondError(c, http.StatusInternalServerError, "STORAGE_ERROR", errStorage)
	}

	body, err := stats.Encode(snapshot)
	if err != nil {
		h.logger.Error("Failed to encode snapshot", slog.String("key", key), slog.Any("error", err))
		return respondError(c, http.StatusInternalServerError, "STORAGE_ERROR", errStorage)
	}

	tag := etag(body)
	c.Set(fiber.HeaderETag, tag)
	if c.Get(fiber.HeaderIfNoneMatch) == tag {
		return c.SendStatus(http.StatusNotModified)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// List returns the stored snapshots between the optional from and to keys,
// inclusive, ordered by key.
func (h *Handler) List(c *fiber.Ctx) error {
	from, err := optionalKey(c.Query("from"))
	if err != nil {
		return badRequest(c, errInvalidKey)
	}
	to, err := optionalKey(c.Query("to"))
	if err != nil {
		return badRequest(c, errInvalidKey)
	}

	snapshots, err := h.store.Range(c.UserContext(), from, to)
	if err != nil {
		h.logger.Error("Failed to list snapshots",
			slog.String("from", from),
			slog.String("to", to),
			slog.Any("error", err))
		return respondError(c, http.StatusInternalServerError, "STORAGE_ERROR", errStorage)
	}

	return c.JSON(SnapshotsResponse{Snapshots: nonNil(snapshots)})
}

// canonicalKey validates a period key and returns its date form.
func canonicalKey(raw string) (string, error) {
	t, err := stats.ParseKey(raw)
	if err != nil {
		return "", err
	}
	return stats.KeyFor(t), nil
}

func optionalKey(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	return canonicalKey(raw)
}

func nonNil(snapshots []*stats.Snapshot) []*stats.Snapshot {
	if snapshots == nil {
		return []*stats.Snapshot{}
	}
	return snapshots
}
