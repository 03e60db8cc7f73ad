package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (h *handlers) appointmentHistory(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	events, err := h.audit.AppointmentHistory(c.Request().Context(), ActorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEventList(events))
}

func (h *handlers) providerEvents(c echo.Context) error {
	providerID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	events, err := h.audit.ProviderEvents(c.Request().Context(), ActorFrom(c), providerID, intQuery(c, "limit"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEventList(events))
}

func (h *handlers) userNotifications(c echo.Context) error {
	userID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	items, err := h.audit.UserNotifications(c.Request().Context(), ActorFrom(c), userID, intQuery(c, "limit"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toNotificationList(items))
}

// pendingNotifications — outbox для внешнего сервиса доставки.
func (h *handlers) pendingNotifications(c echo.Context) error {
	items, err := h.audit.PendingNotifications(c.Request().Context(), ActorFrom(c), intQuery(c, "limit"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toNotificationList(items))
}

func (h *handlers) markDelivered(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.audit.MarkNotificationDelivered(c.Request().Context(), ActorFrom(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
