package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/alphaforge/engine/internal/apperr"
	"github.com/alphaforge/engine/internal/canon"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as the spec §6 error envelope, mapping the
// apperr.Code to an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.New(apperr.CodeInternal, err.Error())
	}

	writeJSON(w, statusForCode(appErr.Code), ErrorResponse{
		Error: ErrorDetail{
			Code:      string(appErr.Code),
			Message:   appErr.Message,
			Retryable: appErr.Retryable,
		},
	})
}

func statusForCode(code apperr.Code) int {
	switch code {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeInvalidParam, apperr.CodeInvalidValue, apperr.CodeInvalidIndicator,
		apperr.CodeIndicatorDepMissing, apperr.CodeCausalFutureAccess, apperr.CodeExecPrecondition,
		apperr.CodeStatsWidthExceeded, apperr.CodeStatsInsufficient, apperr.CodeSchemaMismatch,
		apperr.CodeDatasetMissing, apperr.CodeDatasetUnreadable:
		return http.StatusBadRequest
	case apperr.CodeCancelled:
		return http.StatusGone
	case apperr.CodeRateLimited:
		return http.StatusTooManyRequests
	case apperr.CodeRehydrateUnavail, apperr.CodePersistFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// provenanceAttestation is the value digested into provenance_hash (spec §6
// Attestation, resolved per the Open Question in SPEC_FULL.md §E3). An
// absent component is passed as "" and left out of the digested object.
type provenanceAttestation struct {
	ManifestHash string `json:"manifest_hash"`
	MetricsHash  string `json:"metrics_hash,omitempty"`
	EquityHash   string `json:"equity_curve_hash,omitempty"`
}

func provenanceDigest(manifestHash, metricsHash, equityHash string) (string, error) {
	return canon.Digest(provenanceAttestation{
		ManifestHash: manifestHash,
		MetricsHash:  metricsHash,
		EquityHash:   equityHash,
	})
}
