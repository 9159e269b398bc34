package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ankitchouhan119/SkyObserv/internal/models"
	"github.com/ankitchouhan119/SkyObserv/internal/service"
	"github.com/ankitchouhan119/SkyObserv/internal/syncbus"
	"github.com/ankitchouhan119/SkyObserv/internal/utils"
)

// Handler serves the dashboard tool-call surface over HTTP and streams
// query-sync events over WebSocket.
type Handler struct {
	dashboard *service.Dashboard
	bus       *syncbus.Bus
	logger    *slog.Logger

	router   *mux.Router
	upgrader websocket.Upgrader

	wsMu        sync.Mutex
	wsClients   map[*wsClient]struct{}
	unsubscribe func()
}

// wsClient wraps one sync connection. Bus handlers run on the publishing
// goroutine, so concurrent producers reach the same connection; the mutex
// serializes writes, which gorilla connections require.
type wsClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// NewHandler creates a handler with all routes registered and subscribes it
// to the sync bus so every bus event reaches connected WebSocket clients.
func NewHandler(dashboard *service.Dashboard, bus *syncbus.Bus, logger *slog.Logger) *Handler {
	h := &Handler{
		dashboard: dashboard,
		bus:       bus,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsClients: make(map[*wsClient]struct{}),
	}
	h.router = mux.NewRouter()
	h.registerRoutes()
	h.unsubscribe = bus.Subscribe(h.broadcast)
	return h
}

// Router returns the configured HTTP router.
func (h *Handler) Router() http.Handler {
	return corsMiddleware(h.router)
}

// Close detaches from the bus and drops all WebSocket clients.
func (h *Handler) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.wsMu.Lock()
	for client := range h.wsClients {
		client.conn.Close()
	}
	h.wsClients = make(map[*wsClient]struct{})
	h.wsMu.Unlock()
}

func (h *Handler) registerRoutes() {
	api := h.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/services", h.handleListServices).Methods("GET")
	api.HandleFunc("/services/{id}/metrics", h.handleServiceMetrics).Methods("GET")
	api.HandleFunc("/services/{id}/instances", h.handleInstances).Methods("GET")
	api.HandleFunc("/services/{id}/pods", h.handlePodOverview).Methods("GET")
	api.HandleFunc("/services/{id}/endpoints", h.handleEndpoints).Methods("GET")
	api.HandleFunc("/traces", h.handleTraces).Methods("GET")
	api.HandleFunc("/topology", h.handleTopology).Methods("GET")
	api.HandleFunc("/databases/insights", h.handleDatabaseInsights).Methods("GET")
	api.HandleFunc("/navigate", h.handleNavigate).Methods("POST")
	api.HandleFunc("/window", h.handleWindow).Methods("GET")
	api.HandleFunc("/window/refresh", h.handleRefresh).Methods("POST")
	api.HandleFunc("/ws/sync", h.handleWSSync)

	h.router.HandleFunc("/healthz", h.handleHealth).Methods("GET")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	start, end := windowParams(r)
	services, err := h.dashboard.ListServices(r.Context(), start, end)
	if err != nil {
		h.logger.Error("list services failed", "error", err)
		writeError(w, statusFor(err), "failed to list services")
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (h *Handler) handleServiceMetrics(w http.ResponseWriter, r *http.Request) {
	start, end := windowParams(r)
	m, err := h.dashboard.ServiceMetrics(r.Context(), mux.Vars(r)["id"], start, end)
	if err != nil {
		h.logger.Error("service metrics failed", "error", err)
		writeError(w, statusFor(err), "failed to fetch service metrics")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) handleInstances(w http.ResponseWriter, r *http.Request) {
	start, end := windowParams(r)
	instances, err := h.dashboard.Instances(r.Context(), mux.Vars(r)["id"], start, end)
	if err != nil {
		h.logger.Error("instances failed", "error", err)
		writeError(w, statusFor(err), "failed to fetch instances")
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

func (h *Handler) handlePodOverview(w http.ResponseWriter, r *http.Request) {
	start, end := windowParams(r)
	pods, err := h.dashboard.PodOverview(r.Context(), mux.Vars(r)["id"], start, end)
	if err != nil {
		h.logger.Error("pod overview failed", "error", err)
		writeError(w, statusFor(err), "failed to fetch pod overview")
		return
	}
	writeJSON(w, http.StatusOK, pods)
}

func (h *Handler) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.dashboard.Endpoints(r.Context(), mux.Vars(r)["id"],
		r.URL.Query().Get("keyword"), parseIntParam(r, "limit", 20))
	if err != nil {
		h.logger.Error("endpoints failed", "error", err)
		writeError(w, statusFor(err), "failed to search endpoints")
		return
	}
	writeJSON(w, http.StatusOK, endpoints)
}

func (h *Handler) handleTraces(w http.ResponseWriter, r *http.Request) {
	start, end := windowParams(r)
	traces, err := h.dashboard.Traces(r.Context(), service.TraceRequest{
		ServiceID:   r.URL.Query().Get("serviceId"),
		State:       models.TraceState(r.URL.Query().Get("state")),
		MinDuration: parseIntParam(r, "minDuration", 0),
		PageNum:     parseIntParam(r, "page", 1),
		PageSize:    parseIntParam(r, "pageSize", 20),
		Start:       start,
		End:         end,
	})
	if err != nil {
		h.logger.Error("traces failed", "error", err)
		writeError(w, statusFor(err), "failed to fetch traces")
		return
	}
	writeJSON(w, http.StatusOK, traces)
}

func (h *Handler) handleTopology(w http.ResponseWriter, r *http.Request) {
	start, end := windowParams(r)
	graph, err := h.dashboard.Topology(r.Context(), start, end)
	if err != nil {
		h.logger.Error("topology failed", "error", err)
		writeError(w, statusFor(err), "failed to fetch topology")
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (h *Handler) handleDatabaseInsights(w http.ResponseWriter, r *http.Request) {
	start, end := windowParams(r)
	report, err := h.dashboard.DatabaseInsights(r.Context(), start, end)
	if err != nil {
		h.logger.Error("database insights failed", "error", err)
		writeError(w, statusFor(err), "failed to scan databases")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string           `json:"path"`
		Filters models.FilterSet `json:"filters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid navigate payload")
		return
	}
	if err := h.dashboard.Navigate(req.Path, req.Filters); err != nil {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "navigated", "path": req.Path})
}

// windowResponse is the wire shape of the shared window.
type windowResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Step  string `json:"step"`
	Label string `json:"label"`
}

func (h *Handler) handleWindow(w http.ResponseWriter, r *http.Request) {
	win := h.dashboard.Window()
	writeJSON(w, http.StatusOK, windowResponse{
		Start: win.Start,
		End:   win.End,
		Step:  string(win.Granularity),
		Label: win.Label,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	win := h.dashboard.Refresh()
	writeJSON(w, http.StatusOK, windowResponse{
		Start: win.Start,
		End:   win.End,
		Step:  string(win.Granularity),
		Label: win.Label,
	})
}

func (h *Handler) handleWSSync(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn}
	h.wsMu.Lock()
	h.wsClients[client] = struct{}{}
	h.wsMu.Unlock()

	h.logger.Info("sync client connected", "remoteAddr", conn.RemoteAddr().String())

	// Drain inbound messages so pings are answered; drop the client on the
	// first read error.
	go func() {
		defer func() {
			h.wsMu.Lock()
			delete(h.wsClients, client)
			h.wsMu.Unlock()
			conn.Close()
			h.logger.Info("sync client disconnected", "remoteAddr", conn.RemoteAddr().String())
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcast pushes one bus event to every connected sync client. Clients
// whose write fails are dropped together after the fan-out.
func (h *Handler) broadcast(event models.SyncEvent) {
	h.wsMu.Lock()
	clients := make([]*wsClient, 0, len(h.wsClients))
	for client := range h.wsClients {
		clients = append(clients, client)
	}
	h.wsMu.Unlock()

	if len(clients) == 0 {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal sync event failed", "error", err)
		return
	}

	var failed []*wsClient
	for _, client := range clients {
		if err := client.write(data); err != nil {
			failed = append(failed, client)
		}
	}
	if len(failed) == 0 {
		return
	}
	h.wsMu.Lock()
	for _, client := range failed {
		if _, ok := h.wsClients[client]; ok {
			delete(h.wsClients, client)
			client.conn.Close()
		}
	}
	h.wsMu.Unlock()
}

func windowParams(r *http.Request) (start, end string) {
	q := r.URL.Query()
	return q.Get("start"), q.Get("end")
}

func parseIntParam(r *http.Request, key string, defaultVal int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return defaultVal
	}
	return val
}

// statusFor distinguishes caller mistakes from upstream failures.
func statusFor(err error) int {
	if utils.IsValidation(err) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; nothing useful to do.
		_ = err
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
