package upload

import (
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

type Endpoints struct {
	coordinator *Coordinator
}

func NewEndpoints(coordinator *Coordinator) *Endpoints {
	return &Endpoints{
		coordinator: coordinator,
	}
}

// Create handles POST /uploads
// Query parameters:
//   - size (optional): declared total upload size in bytes
//   - name (optional): file name recorded for the session
//
// The request body is the first chunk.
func (e *Endpoints) Create(ctx *fasthttp.RequestCtx) {
	declaredSize := int64(0)
	if sizeStr := string(ctx.QueryArgs().Peek("size")); sizeStr != "" {
		parsed, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil || parsed < 0 {
			ctx.Error("Invalid size parameter", fasthttp.StatusBadRequest)
			return
		}
		declaredSize = parsed
	}
	fileName := string(ctx.QueryArgs().Peek("name"))

	sess, err := e.coordinator.CreateSession(ctx, ctx.PostBody(), declaredSize, fileName)
	if err != nil {
		log.Error().Err(err).Msg("[UPLOAD] Create session failed")
		e.writeError(ctx, err)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusCreated)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(sess); err != nil {
		log.Error().Err(err).Msg("[UPLOAD] Failed to encode session response")
		ctx.Error("Failed to encode response", fasthttp.StatusInternalServerError)
	}
}

// Append handles POST /uploads/{key}/chunks
// Query parameters:
//   - offset (required): the client's view of the session offset
//
// The request body is the chunk.
func (e *Endpoints) Append(ctx *fasthttp.RequestCtx) {
	key, ok := ctx.UserValue("sessionKey").(string)
	if !ok || key == "" {
		ctx.Error("Session key is required", fasthttp.StatusBadRequest)
		return
	}

	offsetStr := string(ctx.QueryArgs().Peek("offset"))
	if offsetStr == "" {
		ctx.Error("offset is required", fasthttp.StatusBadRequest)
		return
	}
	claimedOffset, err := strconv.ParseInt(offsetStr, 10, 64)
	if err != nil || claimedOffset < 0 {
		ctx.Error("Invalid offset parameter", fasthttp.StatusBadRequest)
		return
	}

	sess, err := e.coordinator.AppendChunk(ctx, key, ctx.PostBody(), claimedOffset)
	if err != nil {
		log.Error().Err(err).Str("sessionKey", key).Msg("[UPLOAD] Append chunk failed")
		e.writeError(ctx, err)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(sess); err != nil {
		log.Error().Err(err).Msg("[UPLOAD] Failed to encode session response")
		ctx.Error("Failed to encode response", fasthttp.StatusInternalServerError)
	}
}

// Status handles GET /uploads/{key}
func (e *Endpoints) Status(ctx *fasthttp.RequestCtx) {
	key, ok := ctx.UserValue("sessionKey").(string)
	if !ok || key == "" {
		ctx.Error("Session key is required", fasthttp.StatusBadRequest)
		return
	}

	sess, err := e.coordinator.Status(ctx, key)
	if err != nil {
		e.writeError(ctx, err)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(sess); err != nil {
		log.Error().Err(err).Msg("[UPLOAD] Failed to encode status response")
		ctx.Error("Failed to encode response", fasthttp.StatusInternalServerError)
	}
}

// Finalize handles POST /uploads/{key}/finalize
// Query parameters:
//   - name (optional): destination file name, defaults to the name given at
//     session creation
func (e *Endpoints) Finalize(ctx *fasthttp.RequestCtx) {
	key, ok := ctx.UserValue("sessionKey").(string)
	if !ok || key == "" {
		ctx.Error("Session key is required", fasthttp.StatusBadRequest)
		return
	}

	destName := string(ctx.QueryArgs().Peek("name"))

	final, err := e.coordinator.Finalize(ctx, key, destName)
	if err != nil {
		log.Error().Err(err).Str("sessionKey", key).Msg("[UPLOAD] Finalize failed")
		e.writeError(ctx, err)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(final); err != nil {
		log.Error().Err(err).Msg("[UPLOAD] Failed to encode finalize response")
		ctx.Error("Failed to encode response", fasthttp.StatusInternalServerError)
	}
}

// Abandon handles DELETE /uploads/{key}
func (e *Endpoints) Abandon(ctx *fasthttp.RequestCtx) {
	key, ok := ctx.UserValue("sessionKey").(string)
	if !ok || key == "" {
		ctx.Error("Session key is required", fasthttp.StatusBadRequest)
		return
	}

	if err := e.coordinator.Abandon(ctx, key); err != nil {
		log.Error().Err(err).Str("sessionKey", key).Msg("[UPLOAD] Abandon failed")
		e.writeError(ctx, err)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

// writeError maps an operation error to a generic client-facing code. The
// structured detail stays in the server logs.
func (e *Endpoints) writeError(ctx *fasthttp.RequestCtx, err error) {
	code := ErrorCode(err)

	var statusCode int
	switch code {
	case "session_not_found":
		statusCode = fasthttp.StatusNotFound
	case "invalid_chunk_offset", "session_not_active":
		statusCode = fasthttp.StatusConflict
	case "file_too_large":
		statusCode = fasthttp.StatusRequestEntityTooLarge
	case "chunk_verification_failed", "verification_failed":
		statusCode = fasthttp.StatusUnprocessableEntity
	default:
		statusCode = fasthttp.StatusInternalServerError
	}

	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json")
	json.NewEncoder(ctx).Encode(map[string]interface{}{
		"error":     code,
		"retriable": Retriable(err),
	})
}
