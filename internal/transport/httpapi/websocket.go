package httpapi

import (
	"net/http"
	"strconv"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// watchAvailability держит websocket и шлёт полную проекцию на каждую
// перепроекцию пары (провайдер, дата). Первое сообщение — текущая проекция.
func (h *handlers) watchAvailability(c echo.Context) error {
	providerID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	date, err := h.dateQuery(c)
	if err != nil {
		return err
	}
	availableOnly, _ := strconv.ParseBool(c.QueryParam("available_only"))

	ctx := c.Request().Context()
	w, err := h.watch.Watch(ctx, providerID, date)
	if err != nil {
		return err
	}
	defer w.Close()

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade уже ответил клиенту.
		h.log.Warn().Err(err).Msg("websocket upgrade")
		return nil
	}
	defer ws.Close()

	h.log.Debug().Str("key", w.Key().String()).Msg("availability watch opened")

	// Читатель нужен только для control-фреймов и обнаружения закрытия.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return nil
		case <-ctx.Done():
			return nil
		case <-ping.C:
			if err := ws.WriteControl(gorillawebsocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return nil
			}
		case p, ok := <-w.C():
			if !ok {
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteJSON(toProjectionResponse(p, availableOnly)); err != nil {
				return nil
			}
		}
	}
}
