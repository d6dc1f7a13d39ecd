package server

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/micha91/music-assistant-server/config"
	"github.com/micha91/music-assistant-server/manifest"
)

// redactedValue replaces password values in API responses. Clients send
// it back unchanged on update, which the server treats as "keep the
// stored value".
const redactedValue = "****"

// configRequest is the request body for creating or updating a provider
// configuration.
type configRequest struct {
	Domain  string                 `json:"domain"`
	Name    string                 `json:"name"`
	Enabled *bool                  `json:"enabled"`
	Values  map[string]interface{} `json:"values"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Error("error writing response")
	}
}

// redact returns the raw form of a provider config with password values
// masked. Secrets never leave the server, not even encrypted.
func redact(conf *config.ProviderConfig) map[string]interface{} {
	raw := conf.ToRaw()
	values, _ := raw["values"].(map[string]interface{})
	for key := range values {
		if entryValue, ok := conf.Values[key]; ok && entryValue.Type == manifest.EntryTypePassword {
			values[key] = redactedValue
		}
	}
	return raw
}

// health reports whether every repository's last refresh succeeded.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	errs := make(map[string]string, len(s.refreshErrs))
	for name, err := range s.refreshErrs {
		errs[name] = err.Error()
	}
	s.mu.RUnlock()

	body := map[string]interface{}{"status": "healthy"}
	status := http.StatusOK
	if len(errs) > 0 {
		body["status"] = "unhealthy"
		body["errors"] = errs
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func (s *Server) listAvailable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.All())
}

func (s *Server) getAvailable(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	m, ok := s.Registry.Get(domain)
	if !ok {
		http.Error(w, "unknown provider domain", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) listConfigs(w http.ResponseWriter, r *http.Request) {
	providerType := manifest.ProviderType(r.URL.Query().Get("type"))
	domain := r.URL.Query().Get("domain")

	configs, err := s.Config.ProviderConfigs(providerType, domain)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	result := make([]map[string]interface{}, 0, len(configs))
	for _, conf := range configs {
		result = append(result, redact(conf))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	conf, err := s.Config.ProviderConfig(r.PathValue("instance"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, redact(conf))
}

func (s *Server) createConfig(w http.ResponseWriter, r *http.Request) {
	var body configRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, ok := s.Registry.Get(body.Domain)
	if !ok {
		http.Error(w, "unknown provider domain", http.StatusNotFound)
		return
	}

	// CreateDefault allocates the instance ID and enforces the
	// manifest's multi-instance rule.
	conf, err := s.Config.CreateDefault(body.Domain)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	raw := conf.ToRaw()
	if body.Name != "" {
		raw["name"] = body.Name
	}
	if body.Enabled != nil {
		raw["enabled"] = *body.Enabled
	}
	raw["values"] = body.Values

	newConf, err := config.ParseProviderConfig(m.ConfigEntries, raw, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Config.SetProviderConfig(newConf); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	saved, err := s.Config.ProviderConfig(newConf.InstanceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, redact(saved))
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	instance := r.PathValue("instance")
	conf, err := s.Config.ProviderConfig(instance)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	m, ok := s.Registry.Get(conf.Domain)
	if !ok {
		http.Error(w, "unknown provider domain", http.StatusNotFound)
		return
	}

	var body configRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw := conf.ToRaw()
	if body.Name != "" {
		raw["name"] = body.Name
	}
	if body.Enabled != nil {
		raw["enabled"] = *body.Enabled
	}
	values, _ := raw["values"].(map[string]interface{})
	if values == nil {
		values = map[string]interface{}{}
	}
	for key, value := range body.Values {
		// A redacted password sent back unchanged keeps the stored
		// (encrypted) value.
		if value == redactedValue {
			continue
		}
		values[key] = value
	}
	raw["values"] = values

	newConf, err := config.ParseProviderConfig(m.ConfigEntries, raw, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Config.SetProviderConfig(newConf); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	saved, err := s.Config.ProviderConfig(instance)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, redact(saved))
}

func (s *Server) deleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.Config.RemoveProviderConfig(r.PathValue("instance")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
