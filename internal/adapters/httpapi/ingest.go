package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/authtail/authtail/internal/domain"
)

// ingestSchema validates externally submitted lines. Producers already
// carry message/source/address fields; classification happened (or was
// skipped) upstream, so the entry point is a raw pass-through.
const ingestSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"message": {"type": "string", "minLength": 1},
		"source":  {"type": "string"},
		"ip":      {"type": "string"}
	},
	"required": ["message"]
}`

type ingestValidator struct {
	schema *jsonschema.Schema
}

func newIngestValidator() (*ingestValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("ingest.json", strings.NewReader(ingestSchema)); err != nil {
		return nil, fmt.Errorf("add ingest schema: %w", err)
	}
	schema, err := compiler.Compile("ingest.json")
	if err != nil {
		return nil, fmt.Errorf("compile ingest schema: %w", err)
	}
	return &ingestValidator{schema: schema}, nil
}

func (v *ingestValidator) validate(raw []byte) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := v.schema.Validate(payload); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

type ingestRequest struct {
	Message string `json:"message"`
	Source  string `json:"source"`
	IP      string `json:"ip"`
}

// handleIngest republishes one externally submitted classified line with a
// fresh id and capture timestamp. A malformed payload is the submitter's
// fault and never touches the hub.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "unreadable body"})
		return
	}

	if err := s.validator.validate(body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid JSON"})
		return
	}

	event := domain.NewIngestedEvent(req.Message, req.Source, req.IP)
	for _, sink := range s.cfg.Sinks {
		sink.Publish(event)
	}

	log.Debug().Str("event", event.ID).Str("source", event.Source).Msg("Event ingested")

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"id":        event.ID,
		"delivered": s.cfg.Hub.SubscriberCount(),
	})
}
