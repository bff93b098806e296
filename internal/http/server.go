package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/crmhub/ruleflow/internal/log"
	"github.com/crmhub/ruleflow/pkg/engine"
	"github.com/crmhub/ruleflow/pkg/models"
	"github.com/crmhub/ruleflow/pkg/storage"
	pkgerrors "github.com/pkg/errors"
)

// StartServer exposes the rule CRUD surface, the log audit view and the
// event ingest endpoint collaborators call.
func StartServer(port string, svc *engine.RuleService, dispatcher *engine.Dispatcher) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/rules", RulesHandler(svc))
	mux.HandleFunc("/rules/", RuleByIDHandler(svc))
	mux.HandleFunc("/logs", LogsHandler(svc))
	mux.HandleFunc("/events", EventsHandler(dispatcher))

	log.GetLogger().Infof("Starting RuleFlow server on :%s", port)
	return http.ListenAndServe(":"+port, mux)
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "RuleFlow server is running")
}

func RulesHandler(svc *engine.RuleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listRulesHTTP(w, svc)
		case http.MethodPost:
			createRuleHTTP(w, r, svc)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// RuleByIDHandler serves /rules/{id} and /rules/{id}/toggle.
func RuleByIDHandler(svc *engine.RuleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/rules/"), "/")
		id := parts[0]
		if id == "" {
			http.Error(w, "Missing rule id", http.StatusBadRequest)
			return
		}

		if len(parts) == 2 && parts[1] == "toggle" {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			toggleRuleHTTP(w, r, svc, id)
			return
		}

		switch r.Method {
		case http.MethodGet:
			getRuleHTTP(w, svc, id)
		case http.MethodPut:
			updateRuleHTTP(w, r, svc, id)
		case http.MethodDelete:
			deleteRuleHTTP(w, svc, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// LogsHandler serves the audit view: GET /logs?rule_id=&from=&to= with
// RFC3339 bounds on created_at.
func LogsHandler(svc *engine.RuleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		filter := storage.LogFilter{RuleID: r.URL.Query().Get("rule_id")}
		if raw := r.URL.Query().Get("from"); raw != "" {
			from, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				http.Error(w, "Invalid 'from' timestamp, want RFC3339", http.StatusBadRequest)
				return
			}
			filter.From = &from
		}
		if raw := r.URL.Query().Get("to"); raw != "" {
			to, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				http.Error(w, "Invalid 'to' timestamp, want RFC3339", http.StatusBadRequest)
				return
			}
			filter.To = &to
		}
		logs, err := svc.ListExecutionLogs(filter)
		if err != nil {
			log.GetLogger().Errorf("Failed to list execution logs: %v", err)
			http.Error(w, "Failed to list execution logs", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

// EventsHandler ingests domain events from collaborators. Evaluation is
// asynchronous: the caller gets 202 as soon as the event is queued.
func EventsHandler(dispatcher *engine.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var ev models.DomainEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, "Invalid event body", http.StatusBadRequest)
			return
		}
		if ev.Type == "" || ev.EntityType == "" || ev.EntityID == "" {
			http.Error(w, "Event requires type, entity_type and entity_id", http.StatusBadRequest)
			return
		}
		if err := dispatcher.Dispatch(ev); err != nil {
			log.GetLogger().Errorf("Failed to dispatch event: %v", err)
			http.Error(w, fmt.Sprintf("Failed to dispatch event: %v", err), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func listRulesHTTP(w http.ResponseWriter, svc *engine.RuleService) {
	rules, err := svc.ListRules()
	if err != nil {
		log.GetLogger().Errorf("Failed to list rules: %v", err)
		http.Error(w, "Failed to list rules", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func createRuleHTTP(w http.ResponseWriter, r *http.Request, svc *engine.RuleService) {
	var in engine.RuleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid rule body", http.StatusBadRequest)
		return
	}
	rule, err := svc.CreateRule(in)
	if err != nil {
		log.GetLogger().Errorf("Failed to create rule: %v", err)
		http.Error(w, fmt.Sprintf("Failed to create rule: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func getRuleHTTP(w http.ResponseWriter, svc *engine.RuleService, id string) {
	rule, err := svc.GetRule(id)
	if pkgerrors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Rule not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.GetLogger().Errorf("Failed to get rule %s: %v", id, err)
		http.Error(w, "Failed to get rule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func updateRuleHTTP(w http.ResponseWriter, r *http.Request, svc *engine.RuleService, id string) {
	var in engine.RuleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid rule body", http.StatusBadRequest)
		return
	}
	rule, err := svc.UpdateRule(id, in)
	if pkgerrors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Rule not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.GetLogger().Errorf("Failed to update rule %s: %v", id, err)
		http.Error(w, fmt.Sprintf("Failed to update rule: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func deleteRuleHTTP(w http.ResponseWriter, svc *engine.RuleService, id string) {
	err := svc.DeleteRule(id)
	if pkgerrors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Rule not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.GetLogger().Errorf("Failed to delete rule %s: %v", id, err)
		http.Error(w, "Failed to delete rule", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toggleRuleHTTP(w http.ResponseWriter, r *http.Request, svc *engine.RuleService, id string) {
	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid toggle body", http.StatusBadRequest)
		return
	}
	err := svc.ToggleRule(id, body.Active)
	if pkgerrors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Rule not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.GetLogger().Errorf("Failed to toggle rule %s: %v", id, err)
		http.Error(w, "Failed to toggle rule", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}
