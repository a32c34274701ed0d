package rooms

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Routes exposes the room endpoints, meant to be mounted under /dailyco:
// - GET /test: liveness of the routes and whether a key is loaded
// - POST /create-room: body {"roomName"?}; 200 {"roomName","roomUrl"}
// - POST /generate-token: body {"roomName","userId"}; 200 {"token","roomName"}
func (c *Client) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/test", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":      "DailyCo route is active",
			"apiKeyLoaded": c.Configured(),
		})
	})

	mux.HandleFunc("/create-room", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !c.Configured() {
			c.log.Error("create-room without DAILY_API_KEY")
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": "Server misconfiguration: DAILY_API_KEY missing",
			})
			return
		}
		var req struct {
			RoomName string `json:"roomName"`
		}
		// an empty or unreadable body just means "pick a name"
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RoomName == "" {
			req.RoomName = fmt.Sprintf("room-%d", time.Now().UnixMilli())
		}

		room, err := c.CreateRoom(r.Context(), req.RoomName)
		if err != nil {
			c.log.Error("create room failed", zap.String("room", req.RoomName), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "Failed to create room",
				"details": details(err),
			})
			return
		}
		c.log.Info("room created", zap.String("room", room.Name))
		writeJSON(w, http.StatusOK, map[string]any{"roomName": room.Name, "roomUrl": room.URL})
	})

	mux.HandleFunc("/generate-token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			RoomName string `json:"roomName"`
			UserID   string `json:"userId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RoomName == "" || req.UserID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Missing roomName or userId"})
			return
		}

		token, err := c.MeetingToken(r.Context(), req.RoomName, req.UserID)
		if err != nil {
			c.log.Error("generate token failed", zap.String("room", req.RoomName), zap.String("user", req.UserID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "Failed to generate token",
				"details": details(err),
			})
			return
		}
		c.log.Info("token generated", zap.String("room", req.RoomName), zap.String("user", req.UserID))
		writeJSON(w, http.StatusOK, map[string]any{"token": token, "roomName": req.RoomName})
	})

	return mux
}

// details prefers the upstream body, the way the API reported the problem.
func details(err error) any {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if json.Valid(apiErr.Body) {
			return apiErr.Body
		}
		return string(apiErr.Body)
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
