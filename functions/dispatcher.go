// Package functions implements the function-call surface the bridge exposes
// to the voice agent. Every handler delegates to an external collaborator
// and normalizes its outcome to a {"success": ...} payload; unknown names
// and collaborator failures come back as structured errors, never as a
// panic or a session-killing error.
package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carelink-ai/callbridge/internal/cache"
	"github.com/carelink-ai/callbridge/internal/metrics"
	"github.com/carelink-ai/callbridge/pipeline"
	"github.com/carelink-ai/callbridge/voiceagent"
)

// Function names the agent may request.
const (
	FnGetPatientContext  = "get_patient_context"
	FnSearchNostalgia    = "search_nostalgia"
	FnSearchRealtime     = "search_realtime"
	FnLogMedicationCheck = "log_medication_check"
	FnTriggerAlert       = "trigger_alert"
	FnSaveConversation   = "save_conversation"
)

// PatientDirectory looks up patient profiles.
type PatientDirectory interface {
	GetPatientContext(ctx context.Context, patientID string) (*pipeline.PatientContext, error)
}

// ContentSearcher retrieves nostalgia and realtime content.
type ContentSearcher interface {
	SearchNostalgia(ctx context.Context, patientID, query string) ([]pipeline.SearchResult, error)
	SearchRealtime(ctx context.Context, patientID, query string) ([]pipeline.SearchResult, error)
}

// MedicationLog records medication check-ins.
type MedicationLog interface {
	LogMedicationCheck(ctx context.Context, patientID, medication, status string) error
}

// AlertNotifier raises caregiver alerts.
type AlertNotifier interface {
	TriggerAlert(ctx context.Context, patientID, severity, reason string) error
}

// Deps are the collaborators behind the function surface. The pipeline
// HTTP client satisfies all four interfaces; Save is the owning session's
// idempotent end-of-call save. Cache may be nil.
type Deps struct {
	Directory PatientDirectory
	Search    ContentSearcher
	MedLog    MedicationLog
	Alerts    AlertNotifier
	Save      func(ctx context.Context) error
	Cache     *cache.Manager
}

// Dispatcher routes one call's function requests. It is bound to a patient
// so the agent cannot ask about anyone else.
type Dispatcher struct {
	patientID string
	deps      Deps
	logger    *zap.Logger
	metrics   *metrics.Collector
	cacheTTL  time.Duration
}

// NewDispatcher creates a dispatcher for one call.
func NewDispatcher(patientID string, deps Deps, collector *metrics.Collector, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		patientID: patientID,
		deps:      deps,
		logger:    logger.With(zap.String("component", "function_dispatcher"), zap.String("patient_id", patientID)),
		metrics:   collector,
		cacheTTL:  10 * time.Minute,
	}
}

// Execute runs the named function and returns the JSON payload to hand
// back to the agent. The payload always carries "success"; failures are
// contained here.
func (d *Dispatcher) Execute(ctx context.Context, name string, params map[string]any) string {
	result, err := d.run(ctx, name, params)
	if err != nil {
		d.logger.Warn("function failed", zap.String("function", name), zap.Error(err))
		d.metrics.RecordFunctionCall(name, "error")
		return encodeResult(map[string]any{"success": false, "error": err.Error()})
	}
	d.metrics.RecordFunctionCall(name, "ok")
	result["success"] = true
	return encodeResult(result)
}

func (d *Dispatcher) run(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	switch name {
	case FnGetPatientContext:
		return d.getPatientContext(ctx)
	case FnSearchNostalgia:
		return d.search(ctx, d.deps.Search.SearchNostalgia, params)
	case FnSearchRealtime:
		return d.search(ctx, d.deps.Search.SearchRealtime, params)
	case FnLogMedicationCheck:
		return d.logMedicationCheck(ctx, params)
	case FnTriggerAlert:
		return d.triggerAlert(ctx, params)
	case FnSaveConversation:
		if err := d.deps.Save(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"saved": true}, nil
	default:
		return nil, fmt.Errorf("unknown function %q", name)
	}
}

func (d *Dispatcher) getPatientContext(ctx context.Context) (map[string]any, error) {
	key := "patient_context:" + d.patientID

	var pc pipeline.PatientContext
	if err := d.deps.Cache.GetJSON(ctx, key, &pc); err == nil {
		return map[string]any{"context": pc, "cached": true}, nil
	}

	got, err := d.deps.Directory.GetPatientContext(ctx, d.patientID)
	if err != nil {
		return nil, err
	}
	if err := d.deps.Cache.SetJSON(ctx, key, got, d.cacheTTL); err != nil {
		d.logger.Debug("patient context not cached", zap.Error(err))
	}
	return map[string]any{"context": got}, nil
}

type searchFn func(ctx context.Context, patientID, query string) ([]pipeline.SearchResult, error)

func (d *Dispatcher) search(ctx context.Context, fn searchFn, params map[string]any) (map[string]any, error) {
	query := stringParam(params, "query")
	if query == "" {
		return nil, fmt.Errorf("missing required parameter %q", "query")
	}
	results, err := fn(ctx, d.patientID, query)
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": results}, nil
}

func (d *Dispatcher) logMedicationCheck(ctx context.Context, params map[string]any) (map[string]any, error) {
	medication := stringParam(params, "medication")
	if medication == "" {
		return nil, fmt.Errorf("missing required parameter %q", "medication")
	}
	status := stringParam(params, "status")
	if status == "" {
		status = "mentioned"
	}
	if err := d.deps.MedLog.LogMedicationCheck(ctx, d.patientID, medication, status); err != nil {
		return nil, err
	}
	return map[string]any{"logged": true}, nil
}

func (d *Dispatcher) triggerAlert(ctx context.Context, params map[string]any) (map[string]any, error) {
	reason := stringParam(params, "reason")
	if reason == "" {
		return nil, fmt.Errorf("missing required parameter %q", "reason")
	}
	severity := stringParam(params, "severity")
	if severity == "" {
		severity = "medium"
	}
	if err := d.deps.Alerts.TriggerAlert(ctx, d.patientID, severity, reason); err != nil {
		return nil, err
	}
	return map[string]any{"alerted": true, "severity": severity}, nil
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	s, _ := params[key].(string)
	return s
}

func encodeResult(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"success": false, "error": "result not serializable"}`
	}
	return string(data)
}

// Definitions returns the schema advertised to the agent at session start.
func Definitions() []voiceagent.FunctionDefinition {
	obj := func(props map[string]any, required ...string) map[string]any {
		s := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			s["required"] = required
		}
		return s
	}
	return []voiceagent.FunctionDefinition{
		{
			Name:        FnGetPatientContext,
			Description: "Fetch the patient's profile: interests, medications, and care notes.",
			Parameters:  obj(map[string]any{}),
		},
		{
			Name:        FnSearchNostalgia,
			Description: "Find era-appropriate reminiscence content (music, events, culture) for the patient.",
			Parameters: obj(map[string]any{
				"query": map[string]any{"type": "string", "description": "What to reminisce about"},
			}, "query"),
		},
		{
			Name:        FnSearchRealtime,
			Description: "Look up current information such as news, weather, or facts.",
			Parameters: obj(map[string]any{
				"query": map[string]any{"type": "string", "description": "What to look up"},
			}, "query"),
		},
		{
			Name:        FnLogMedicationCheck,
			Description: "Record that a medication was discussed, taken, or skipped during the call.",
			Parameters: obj(map[string]any{
				"medication": map[string]any{"type": "string", "description": "Medication name"},
				"status":     map[string]any{"type": "string", "description": "taken, skipped, or mentioned"},
			}, "medication"),
		},
		{
			Name:        FnTriggerAlert,
			Description: "Alert the caregiver when the patient reports distress, confusion, or a safety concern.",
			Parameters: obj(map[string]any{
				"reason":   map[string]any{"type": "string", "description": "Why the caregiver should be alerted"},
				"severity": map[string]any{"type": "string", "description": "low, medium, or high"},
			}, "reason"),
		},
		{
			Name:        FnSaveConversation,
			Description: "Save the conversation so far. Usually called when the patient says goodbye.",
			Parameters:  obj(map[string]any{}),
		},
	}
}
