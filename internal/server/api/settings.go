package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/srujkamble02/ishara/internal/config"
	"github.com/srujkamble02/ishara/internal/store"
)

// restartKeys only take effect on the next start.
var restartKeys = map[string]bool{
	"camera_id":  true,
	"model_path": true,
}

// Resolver finishes an effective configuration, for example by re-applying
// command line flags that take precedence over stored overrides.
type Resolver func(config.Config) (config.Config, error)

// SettingsHandler reads and persists runtime overrides of the configuration.
// The effective configuration is base with the stored overrides applied, then
// passed through the resolver if one is set.
type SettingsHandler struct {
	store    *store.Store
	base     config.Config
	resolve  Resolver
	onChange func(config.Config)
	logger   *zap.SugaredLogger

	mu sync.Mutex
}

// NewSettingsHandler creates a SettingsHandler. onChange, if set, receives the
// effective configuration after every successful change.
func NewSettingsHandler(s *store.Store, base config.Config, onChange func(config.Config), logger *zap.SugaredLogger) *SettingsHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SettingsHandler{
		store:    s,
		base:     base,
		onChange: onChange,
		logger:   logger,
	}
}

// WithResolver sets the resolver applied after the stored overrides.
func (h *SettingsHandler) WithResolver(r Resolver) *SettingsHandler {
	h.resolve = r
	return h
}

// build applies overrides to the base configuration and resolves the result.
func (h *SettingsHandler) build(overrides map[string]string) (config.Config, error) {
	cfg, err := h.base.ApplySettings(overrides)
	if err != nil || h.resolve == nil {
		return cfg, err
	}
	return h.resolve(cfg)
}

type settingsResponse struct {
	Settings        map[string]string `json:"settings"`
	Overrides       map[string]string `json:"overrides"`
	Keys            []string          `json:"keys"`
	RestartRequired bool              `json:"restart_required,omitempty"`
}

// ServeHTTP routes /api/settings and /api/settings/{key}.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/settings")
	key = strings.TrimPrefix(key, "/")

	if key == "" {
		switch r.Method {
		case http.MethodGet:
			h.get(w, r)
		case http.MethodPut:
			h.update(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.delete(w, r, key)
}

// effective returns the stored overrides and the configuration they produce.
func (h *SettingsHandler) effective() (map[string]string, config.Config, error) {
	overrides, err := h.store.Settings().All()
	if err != nil {
		return nil, h.base, err
	}
	cfg, err := h.build(overrides)
	return overrides, cfg, err
}

func (h *SettingsHandler) respond(w http.ResponseWriter, overrides map[string]string, cfg config.Config, restart bool) {
	writeJSON(w, http.StatusOK, settingsResponse{
		Settings:        cfg.Settings(),
		Overrides:       overrides,
		Keys:            config.SettableKeys(),
		RestartRequired: restart,
	})
}

// get handles GET /api/settings.
func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	overrides, cfg, err := h.effective()
	if err != nil {
		h.logger.Warnw("stored settings are invalid", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	h.respond(w, overrides, cfg, false)
}

// update handles PUT /api/settings with a JSON object of string values.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "No settings given")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	overrides, _, err := h.effective()
	if err != nil && overrides == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	restart := false
	for k, v := range req {
		overrides[k] = v
		restart = restart || restartKeys[k]
	}

	cfg, err := h.build(overrides)
	if err != nil {
		switch {
		case errors.Is(err, config.ErrUnknownSetting), errors.Is(err, config.ErrInvalid):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "Failed to apply settings")
		}
		return
	}

	if err := h.store.Settings().SetAll(req); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	h.logger.Infow("settings updated", "settings", req, "restart_required", restart)

	if h.onChange != nil {
		h.onChange(cfg)
	}
	h.respond(w, overrides, cfg, restart)
}

// delete handles DELETE /api/settings/{key} and reverts the key to the file value.
func (h *SettingsHandler) delete(w http.ResponseWriter, r *http.Request, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.store.Settings().Delete(key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Setting not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete setting")
		return
	}

	overrides, cfg, err := h.effective()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	if h.onChange != nil {
		h.onChange(cfg)
	}
	h.respond(w, overrides, cfg, restartKeys[key])
}
