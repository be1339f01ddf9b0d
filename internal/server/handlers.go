// Package server implements the HTTP request engine: the three
// /keys/{key} handlers that run the state machine described in
// SPEC_FULL.md §4.B on top of an internal/store.State, plus the role
// gate, size validation, and TTL parsing that guard them.
package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/transdb/transdb/internal/store"
)

// Handler wires the state store to the three key-operation endpoints.
// MaxKeySize and MaxValueSize default to the store's spec-fixed
// constants but can be overridden per-instance (see config.NodeConfig).
type Handler struct {
	State        *store.State
	Role         Role
	MaxKeySize   int
	MaxValueSize int
}

// NewHandler returns a Handler with the default size limits.
func NewHandler(state *store.State, role Role) *Handler {
	return &Handler{
		State:        state,
		Role:         role,
		MaxKeySize:   store.MaxKeySize,
		MaxValueSize: store.MaxValueSize,
	}
}

// replicaGate returns a response and true if this node must reject the
// request outright because it is configured as a replica.
func (h *Handler) replicaGate(c echo.Context) (error, bool) {
	if h.Role == RoleReplica {
		return writeError(c, http.StatusMethodNotAllowed, "Replica does not accept key operations"), true
	}
	return nil, false
}

func (h *Handler) keySizeGate(c echo.Context, key string) (error, bool) {
	if len(key) > h.MaxKeySize {
		return writeError(c, http.StatusBadRequest,
			"Key exceeds maximum size of "+strconv.Itoa(h.MaxKeySize)+" bytes"), true
	}
	return nil, false
}

func etagValue(version uint64) string {
	return `"` + strconv.FormatUint(version, 10) + `"`
}

// Get implements GET /keys/:key.
func (h *Handler) Get(c echo.Context) error {
	if err, done := h.replicaGate(c); done {
		return err
	}
	key := c.Param("key")
	if err, done := h.keySizeGate(c, key); done {
		return err
	}

	result, err := h.State.Get(key)
	switch {
	case errors.Is(err, store.ErrLockTimeout):
		return writeError(c, http.StatusServiceUnavailable, "Server error: Lock acquisition timed out")
	case errors.Is(err, store.ErrNotFound):
		return writeError(c, http.StatusNotFound, "Key not found: "+key)
	}

	c.Response().Header().Set(echo.HeaderETag, etagValue(result.Version))
	if result.Expired {
		c.Response().Header().Set("X-Expired", "true")
	}
	return c.Blob(http.StatusOK, "application/octet-stream", result.Value)
}

// Put implements PUT /keys/:key.
func (h *Handler) Put(c echo.Context) error {
	if err, done := h.replicaGate(c); done {
		return err
	}
	key := c.Param("key")
	if err, done := h.keySizeGate(c, key); done {
		return err
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "failed to read request body")
	}
	if len(body) > h.MaxValueSize {
		return writeError(c, http.StatusBadRequest,
			"Value exceeds maximum size of "+strconv.Itoa(h.MaxValueSize)+" bytes")
	}

	var ttl *int64
	if raw := c.Request().Header.Get("X-TTL"); raw != "" {
		parsed, parseErr := strconv.ParseUint(raw, 10, 64)
		if parseErr != nil {
			return writeError(c, http.StatusBadRequest, "X-TTL must be a non-negative integer")
		}
		v := int64(parsed)
		ttl = &v
	}

	idempotencyKey := c.Request().Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		return writeError(c, http.StatusBadRequest, "Idempotency-Key header is required")
	}

	result, err := h.State.Put(key, body, ttl, idempotencyKey)
	switch {
	case errors.Is(err, store.ErrLockTimeout):
		return writeError(c, http.StatusServiceUnavailable, "Server error: Lock acquisition timed out")
	case errors.Is(err, store.ErrIdempotencyConflict):
		return writeError(c, http.StatusUnprocessableEntity,
			"Idempotency-Key was already used for a different method or key path")
	}

	c.Response().Header().Set(echo.HeaderETag, etagValue(result.Version))
	return c.NoContent(http.StatusOK)
}

// Delete implements DELETE /keys/:key.
func (h *Handler) Delete(c echo.Context) error {
	if err, done := h.replicaGate(c); done {
		return err
	}
	key := c.Param("key")
	if err, done := h.keySizeGate(c, key); done {
		return err
	}

	idempotencyKey := c.Request().Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		return writeError(c, http.StatusBadRequest, "Idempotency-Key header is required")
	}

	result, err := h.State.Delete(key, idempotencyKey)
	switch {
	case errors.Is(err, store.ErrLockTimeout):
		return writeError(c, http.StatusServiceUnavailable, "Server error: Lock acquisition timed out")
	case errors.Is(err, store.ErrIdempotencyConflict):
		return writeError(c, http.StatusUnprocessableEntity,
			"Idempotency-Key was already used for a different method or key path")
	}

	if !result.Tombstoned {
		return c.NoContent(http.StatusNoContent)
	}
	c.Response().Header().Set(echo.HeaderETag, etagValue(result.Version))
	return c.NoContent(http.StatusOK)
}
