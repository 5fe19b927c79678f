package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// generateID generates a short unique suffix for component ids
func generateID() string {
	return uuid.New().String()[:8]
}

// BaseTool serves a set of capabilities over HTTP. Each capability is
// mounted at /api/capabilities/{name}; /api/capabilities lists them and
// /health reports liveness.
type BaseTool struct {
	ID           string
	Name         string
	Capabilities []Capability
	capMutex     sync.RWMutex

	Logger Logger
	Config *Config

	server     *http.Server
	serverMu   sync.Mutex
	mux        *http.ServeMux
	middleware []func(http.Handler) http.Handler

	registeredPatterns map[string]bool
}

// NewTool creates a new tool with default configuration
func NewTool(name string) *BaseTool {
	config := DefaultConfig()
	config.Name = name
	return NewToolWithConfig(config)
}

// NewToolWithConfig creates a new tool with custom configuration
func NewToolWithConfig(config *Config) *BaseTool {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Name == "" {
		config.Name = "grocery-tools"
	}
	if config.ID == "" {
		config.ID = fmt.Sprintf("%s-%s", config.Name, generateID())
	}

	return &BaseTool{
		ID:                 config.ID,
		Name:               config.Name,
		Logger:             &NoOpLogger{},
		Config:             config,
		mux:                http.NewServeMux(),
		registeredPatterns: make(map[string]bool),
	}
}

// GetCapabilities returns a copy of the registered capabilities
func (t *BaseTool) GetCapabilities() []Capability {
	t.capMutex.RLock()
	defer t.capMutex.RUnlock()

	caps := make([]Capability, len(t.Capabilities))
	copy(caps, t.Capabilities)
	return caps
}

// Use appends outer middleware (tracing, correlation) applied around the
// standard recovery, logging and CORS stack.
func (t *BaseTool) Use(mw ...func(http.Handler) http.Handler) {
	t.middleware = append(t.middleware, mw...)
}

// RegisterCapability registers a capability and its HTTP handler.
// An empty Endpoint defaults to /api/capabilities/{name}.
func (t *BaseTool) RegisterCapability(cap Capability) {
	t.capMutex.Lock()
	defer t.capMutex.Unlock()

	if cap.Endpoint == "" {
		cap.Endpoint = fmt.Sprintf("/api/capabilities/%s", cap.Name)
	}
	if t.registeredPatterns[cap.Endpoint] {
		t.Logger.Warn("Capability endpoint already registered", map[string]interface{}{
			"name":     cap.Name,
			"endpoint": cap.Endpoint,
		})
		return
	}

	if cap.InputSummary != nil {
		cap.SchemaEndpoint = cap.Endpoint + SchemaEndpointSuffix
		t.mux.HandleFunc(cap.SchemaEndpoint, t.handleSchemaRequest(cap))
		t.registeredPatterns[cap.SchemaEndpoint] = true
	}

	handler := cap.Handler
	if handler == nil {
		handler = t.handleCapabilityRequest(cap)
	}
	if len(cap.Methods) > 0 {
		handler = allowMethods(cap.Methods, handler)
	}
	t.mux.HandleFunc(cap.Endpoint, handler)
	t.registeredPatterns[cap.Endpoint] = true
	t.Capabilities = append(t.Capabilities, cap)

	t.Logger.Info("Registered capability", map[string]interface{}{
		"name":           cap.Name,
		"endpoint":       cap.Endpoint,
		"custom_handler": cap.Handler != nil,
		"has_schema":     cap.InputSummary != nil,
	})
}

// handleCapabilityRequest describes a capability registered without a handler.
func (t *BaseTool) handleCapabilityRequest(cap Capability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotImplemented)
		_ = json.NewEncoder(w).Encode(ToolResponse{
			Success: false,
			Error: &ToolError{
				Code:     "NOT_IMPLEMENTED",
				Message:  fmt.Sprintf("capability %s has no handler", cap.Name),
				Category: CategoryServiceError,
			},
		})
	}
}

// allowMethods answers 405 with an Allow header for methods outside allowed.
func allowMethods(allowed []string, next http.HandlerFunc) http.HandlerFunc {
	allow := strings.Join(allowed, ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		for _, m := range allowed {
			if r.Method == m {
				next(w, r)
				return
			}
		}
		w.Header().Set("Allow", allow)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(ToolResponse{
			Success: false,
			Error: &ToolError{
				Code:     "METHOD_NOT_ALLOWED",
				Message:  fmt.Sprintf("method %s not allowed, use %s", r.Method, allow),
				Category: CategoryInputError,
			},
		})
	}
}

// handleSchemaRequest serves a JSON Schema (draft-07) built from InputSummary.
func (t *BaseTool) handleSchemaRequest(cap Capability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(generateJSONSchema(cap)); err != nil {
			t.Logger.Error("Failed to encode schema", map[string]interface{}{
				"error":      err,
				"capability": cap.Name,
			})
		}
	}
}

func generateJSONSchema(cap Capability) map[string]interface{} {
	schema := map[string]interface{}{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"type":        "object",
		"title":       cap.Name,
		"description": cap.Description,
	}
	if cap.InputSummary == nil {
		return schema
	}

	properties := make(map[string]interface{})
	required := []string{}
	for _, field := range cap.InputSummary.RequiredFields {
		properties[field.Name] = fieldHintToJSONSchema(field)
		required = append(required, field.Name)
	}
	for _, field := range cap.InputSummary.OptionalFields {
		properties[field.Name] = fieldHintToJSONSchema(field)
	}

	schema["properties"] = properties
	if len(required) > 0 {
		schema["required"] = required
	}
	schema["additionalProperties"] = false
	return schema
}

func fieldHintToJSONSchema(field FieldHint) map[string]interface{} {
	prop := map[string]interface{}{"type": field.Type}
	if field.Description != "" {
		prop["description"] = field.Description
	}
	if field.Example != "" {
		prop["examples"] = []string{field.Example}
	}
	return prop
}

// setupStandardEndpoints adds /api/capabilities and the health endpoint
func (t *BaseTool) setupStandardEndpoints() {
	t.capMutex.Lock()
	defer t.capMutex.Unlock()

	const capabilitiesPath = "/api/capabilities"
	if !t.registeredPatterns[capabilitiesPath] {
		t.mux.HandleFunc(capabilitiesPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(t.GetCapabilities()); err != nil {
				t.Logger.Error("Failed to encode capabilities", map[string]interface{}{
					"error":   err,
					"tool_id": t.ID,
				})
			}
		})
		t.registeredPatterns[capabilitiesPath] = true
	}

	if !t.Config.HTTP.EnableHealthCheck {
		return
	}
	healthPath := t.Config.HTTP.HealthCheckPath
	if healthPath == "" {
		healthPath = "/health"
	}
	if !t.registeredPatterns[healthPath] {
		t.mux.HandleFunc(healthPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"type":   "tool",
				"name":   t.Name,
				"id":     t.ID,
			})
		})
		t.registeredPatterns[healthPath] = true
	}
}

// Handler returns the full middleware stack around the capability mux.
// Order, outermost first: user middleware, CORS, logging, recovery.
func (t *BaseTool) Handler() http.Handler {
	t.setupStandardEndpoints()

	var handler http.Handler = t.mux
	handler = RecoveryMiddleware(t.Logger)(handler)
	handler = LoggingMiddleware(t.Logger, t.Config.Development.Enabled)(handler)
	if t.Config.HTTP.CORS.Enabled {
		handler = CORSMiddleware(&t.Config.HTTP.CORS)(handler)
	}
	for i := len(t.middleware) - 1; i >= 0; i-- {
		handler = t.middleware[i](handler)
	}
	return handler
}

// Start serves the tool on port until Shutdown is called. A negative port
// falls back to Config.Port.
func (t *BaseTool) Start(ctx context.Context, port int) error {
	if port < 0 {
		port = t.Config.Port
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid port %d: %w", port, ErrInvalidConfiguration)
	}

	addr := fmt.Sprintf("%s:%d", t.Config.Address, port)
	server := &http.Server{
		Addr:              addr,
		Handler:           t.Handler(),
		ReadTimeout:       t.Config.HTTP.ReadTimeout,
		ReadHeaderTimeout: t.Config.HTTP.ReadHeaderTimeout,
		WriteTimeout:      t.Config.HTTP.WriteTimeout,
		IdleTimeout:       t.Config.HTTP.IdleTimeout,
		MaxHeaderBytes:    t.Config.HTTP.MaxHeaderBytes,
	}

	t.serverMu.Lock()
	if t.server != nil {
		t.serverMu.Unlock()
		return ErrAlreadyStarted
	}
	t.server = server
	t.serverMu.Unlock()

	endpoints := make([]string, 0, len(t.registeredPatterns))
	t.capMutex.RLock()
	for pattern := range t.registeredPatterns {
		endpoints = append(endpoints, pattern)
	}
	t.capMutex.RUnlock()
	sort.Strings(endpoints)

	t.Logger.InfoWithContext(ctx, "Starting HTTP server", map[string]interface{}{
		"address":      addr,
		"cors":         t.Config.HTTP.CORS.Enabled,
		"capabilities": len(t.GetCapabilities()),
		"endpoints":    endpoints,
	})

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		t.Logger.Error("HTTP server failed", map[string]interface{}{
			"error":   err.Error(),
			"address": addr,
		})
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (t *BaseTool) Shutdown(ctx context.Context) error {
	t.Logger.Info("Shutting down tool", map[string]interface{}{"name": t.Name})

	t.serverMu.Lock()
	server := t.server
	t.serverMu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
