package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

var streamKeepAlive = 30 * time.Second

// streamBoard pushes one frame per board version as Server-Sent Events. The
// first frame carries the current board, later frames follow mutations.
func (h *handlers) streamBoard(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	res.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	var sent uint64
	first := true
	for {
		// Subscribe before reading so a mutation in between is not missed.
		changed := h.Store.Changed()
		b, v := h.Store.SnapshotVersion()
		if first || v != sent {
			data, err := sonic.Marshal(boardResponse{Version: v, Columns: b})
			if err != nil {
				h.Logger.WithError(err).Error("stream: encode board")
				return nil
			}
			if err := writeFrame(res, v, data); err != nil {
				return nil
			}
			flusher.Flush()
			sent, first = v, false
		}

		select {
		case <-changed:
		case <-ticker.C:
			if _, err := res.Write([]byte(":keepalive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}

func writeFrame(res *echo.Response, version uint64, data []byte) error {
	frame := make([]byte, 0, len(data)+32)
	frame = append(frame, "id: "...)
	frame = strconv.AppendUint(frame, version, 10)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)
	_, err := res.Write(frame)
	return err
}
