/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, keeping the domain
  types in violations/ free of presentation concerns (money as strings,
  dates as RFC3339).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Clients:     ClientDTO, CreateClientRequest
  Cases:       CaseDTO
  Queue:       QueueItemDTO
  Sweeps:      SweepRunDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - violations/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/warp/violation-sync/store/sqlite"
	"github.com/warp/violation-sync/violations"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// CreateClientRequest is the body for creating or replacing a client.
type CreateClientRequest struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// CaseDTO represents a case record in API responses.
type CaseDTO struct {
	ID                string `json:"id"`
	ReferenceNumber   string `json:"reference_number"`
	ClientID          string `json:"client_id"`
	Respondent        string `json:"respondent"`
	HearingDate       string `json:"hearing_date,omitempty"`
	Status            string `json:"status"`
	BaseFine          string `json:"base_fine"`
	AmountDue         string `json:"amount_due"`
	ViolationDate     string `json:"violation_date,omitempty"`
	ViolationLocation string `json:"violation_location,omitempty"`
	Plate             string `json:"plate,omitempty"`
	DocumentURL       string `json:"document_url"`
	VideoURL          string `json:"video_url"`

	EnrichmentStatus    string `json:"enrichment_status"`
	Narrative           string `json:"narrative,omitempty"`
	ExtractedPlate      string `json:"extracted_plate,omitempty"`
	ExtractedIdentifier string `json:"extracted_identifier,omitempty"`
	EnrichmentError     string `json:"enrichment_error,omitempty"`
	EnrichedAt          string `json:"enriched_at,omitempty"`

	LastChangeSummary string `json:"last_change_summary,omitempty"`
	LastChangeAt      string `json:"last_change_at,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// QueueItemDTO is one entry of the enrichment queue.
type QueueItemDTO struct {
	Position        int      `json:"position"`
	CaseID          string   `json:"case_id"`
	ReferenceNumber string   `json:"reference_number"`
	HearingDate     string   `json:"hearing_date,omitempty"`
	Reason          string   `json:"reason"`
	Missing         []string `json:"missing,omitempty"`
	Repair          bool     `json:"repair"`
}

// SweepRunDTO is one recorded sweep attempt.
type SweepRunDTO struct {
	ID          string `json:"id"`
	Trigger     string `json:"trigger"`
	Status      string `json:"status"`
	Matched     int    `json:"matched"`
	Created     int    `json:"created"`
	Updated     int    `json:"updated"`
	Errors      int    `json:"errors"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toClientDTO(c violations.Client) ClientDTO {
	aliases := c.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	return ClientDTO{ID: string(c.ID), Name: c.Name, Aliases: aliases}
}

func toCaseDTO(rec violations.CaseRecord) CaseDTO {
	return CaseDTO{
		ID:                  string(rec.ID),
		ReferenceNumber:     rec.ReferenceNumber,
		ClientID:            string(rec.ClientID),
		Respondent:          rec.Respondent,
		HearingDate:         formatOptional(rec.HearingDate),
		Status:              rec.Status,
		BaseFine:            rec.BaseFine.StringFixed(2),
		AmountDue:           rec.AmountDue.StringFixed(2),
		ViolationDate:       formatOptional(rec.ViolationDate),
		ViolationLocation:   rec.ViolationLocation,
		Plate:               rec.Plate,
		DocumentURL:         rec.DocumentURL,
		VideoURL:            rec.VideoURL,
		EnrichmentStatus:    string(rec.EnrichmentStatus),
		Narrative:           rec.Narrative,
		ExtractedPlate:      rec.ExtractedPlate,
		ExtractedIdentifier: rec.ExtractedIdentifier,
		EnrichmentError:     rec.EnrichmentError,
		EnrichedAt:          formatOptional(rec.EnrichedAt),
		LastChangeSummary:   rec.LastChangeSummary,
		LastChangeAt:        formatOptional(rec.LastChangeAt),
		CreatedAt:           rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           rec.UpdatedAt.Format(time.RFC3339),
	}
}

func toQueueItemDTOs(items []violations.QueueItem) []QueueItemDTO {
	dtos := make([]QueueItemDTO, len(items))
	for i, item := range items {
		dtos[i] = QueueItemDTO{
			Position:        i + 1,
			CaseID:          string(item.Record.ID),
			ReferenceNumber: item.Record.ReferenceNumber,
			HearingDate:     formatOptional(item.Record.HearingDate),
			Reason:          string(item.Reason),
			Missing:         item.Missing,
			Repair:          item.Repair,
		}
	}
	return dtos
}

func toSweepRunDTO(run sqlite.SweepRun) SweepRunDTO {
	dto := SweepRunDTO{
		ID:        run.ID,
		Trigger:   run.Trigger,
		Status:    run.Status,
		Matched:   run.Result.Matched,
		Created:   run.Result.Created,
		Updated:   run.Result.Updated,
		Errors:    run.Result.Errors,
		Error:     run.Error,
		StartedAt: run.StartedAt.Format(time.RFC3339),
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
