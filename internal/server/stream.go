package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"agent-relay/internal/models"
)

const streamBufferSize = 32 * 1024

// writeStream pumps the upstream body to the client chunk by chunk, flushing
// after each write. Once headers are sent failures can only be logged.
func writeStream(c echo.Context, stream *models.Stream) error {
	defer stream.Body.Close()

	ctx := c.Request().Context()
	res := c.Response()
	header := res.Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set(echo.HeaderConnection, "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	buf := make([]byte, streamBufferSize)
	for {
		n, readErr := stream.Body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if stream.Frame != nil {
				framed, err := stream.Frame(chunk)
				if err != nil {
					slog.ErrorContext(ctx, "frame stream chunk", "err", err)
					return nil
				}
				chunk = framed
			}
			if len(chunk) > 0 {
				if _, err := res.Write(chunk); err != nil {
					slog.DebugContext(ctx, "client went away mid-stream", "err", err)
					return nil
				}
				res.Flush()
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			slog.WarnContext(ctx, "upstream stream aborted", "err", readErr)
			return nil
		}
	}

	tail := stream.Trailer
	if stream.Flush != nil {
		rest, err := stream.Flush()
		if err != nil {
			slog.ErrorContext(ctx, "flush stream framer", "err", err)
			return nil
		}
		tail = append(rest, stream.Trailer...)
	}
	if len(tail) > 0 {
		if _, err := res.Write(tail); err != nil {
			slog.DebugContext(ctx, "write stream trailer", "err", err)
			return nil
		}
		res.Flush()
	}
	return nil
}
