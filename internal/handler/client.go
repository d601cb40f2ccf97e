package handler

import (
	"encoding/json"
	"net/http"

	"detectionui/internal/dto"
	"detectionui/internal/logger"
	"detectionui/internal/service"
	hub "detectionui/internal/service/websocket"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler registers a viewer in the HubService, sends it the current settings and
// forwards the control events it sends (source, threshold) to the Manager.
func ViewWebsocketHandler(manager *service.Manager, hubService *hub.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		id := hubService.Register(connection)
		defer hubService.Unregister(connection)

		sendInstruction(hubService, connection, manager.SettingsInstruction(), logger)

		for {
			_, message, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Viewer %s disconnected normally", id)
				} else {
					logger.Warning("Viewer %s disconnected: %v", id, err)
				}
				break
			}

			var event dto.ControlEvent
			if err := json.Unmarshal(message, &event); err != nil {
				logger.Warning("Viewer %s sent malformed control event: %v", id, err)
				continue
			}

			if err := dispatchControl(manager, event); err != nil {
				logger.Warning("Viewer %s control %q rejected: %v", id, event.Type, err)
				sendInstruction(hubService, connection, dto.RenderInstruction{Kind: dto.RenderStatus, Message: err.Error()}, logger)
			}
		}
	}
}

// dispatchControl maps one control event to its Manager handler.
func dispatchControl(manager *service.Manager, event dto.ControlEvent) error {
	switch event.Type {
	case "source":
		_, err := manager.HandleSourceChange(event.Source)
		return err
	case "threshold":
		if event.Threshold == nil {
			return dto.ErrInvalidThreshold
		}
		_, err := manager.HandleThresholdChange(*event.Threshold)
		return err
	default:
		return errUnknownControl(event.Type)
	}
}

func sendInstruction(hubService *hub.HubService, connection *websocket.Conn, instruction dto.RenderInstruction, logger *logger.Logger) {
	msg, err := json.Marshal(instruction)
	if err != nil {
		logger.Error("Failed to encode instruction: %v", err)
		return
	}
	hubService.Send(connection, msg)
}
