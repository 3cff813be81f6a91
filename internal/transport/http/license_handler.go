package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apierrors "pvcli/internal/errors"
	"pvcli/internal/license"
)

var validate = validator.New()

// LicenseHandler handles license verification and issuing over HTTP.
type LicenseHandler struct {
	codec  *license.Codec
	cache  *license.ResultCache
	logger *slog.Logger
	now    func() time.Time
}

// NewLicenseHandler creates a new license handler. cache may be nil to
// disable verification caching.
func NewLicenseHandler(codec *license.Codec, cache *license.ResultCache, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		codec:  codec,
		cache:  cache,
		logger: logger.With(slog.String("handler", "license")),
		now:    time.Now,
	}
}

// VerifyRequest carries the framed license text to verify.
type VerifyRequest struct {
	License string `json:"license" validate:"required"`
}

// Bind implements the render.Binder interface
func (v *VerifyRequest) Bind(r *http.Request) error {
	return validate.Struct(v)
}

// VerifyResponse reports the verification outcome.
type VerifyResponse struct {
	Valid      bool                 `json:"valid"`
	Outcome    string               `json:"outcome"`
	Attributes map[string]string    `json:"attributes,omitempty"`
	Renewal    *license.RenewalInfo `json:"renewal,omitempty"`
	Cached     bool                 `json:"cached"`
	TraceID    string               `json:"trace_id"`
	Timestamp  time.Time            `json:"timestamp"`
}

// Render implements the render.Renderer interface
func (v *VerifyResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// IssueRequest carries the attributes of a license to issue.
type IssueRequest struct {
	Type      string `json:"type" validate:"required"`
	ExpiresAt string `json:"expires_at" validate:"required,datetime=2006-01-02"`
	Label     string `json:"label,omitempty"`
}

// Bind implements the render.Binder interface
func (i *IssueRequest) Bind(r *http.Request) error {
	return validate.Struct(i)
}

// IssueResponse carries the freshly issued license text.
type IssueResponse struct {
	License   string    `json:"license"`
	AuditID   string    `json:"audit_id"`
	TraceID   string    `json:"trace_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Render implements the render.Renderer interface
func (i *IssueResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// Routes returns a chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/verify", h.Verify)
	r.Post("/issue", h.Issue)
	if h.cache != nil {
		r.Get("/cache/stats", h.CacheStats)
	}

	return r
}

// Verify handles POST /api/license/verify
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	req := &VerifyRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	result, cached := h.verify(ctx, req.License)

	switch result.Outcome {
	case license.OutcomeValid:
		renewal := license.Renewal(result.Record, h.now())
		render.Render(w, r, &VerifyResponse{
			Valid:      true,
			Outcome:    result.Outcome.String(),
			Attributes: attributeStrings(result.Record),
			Renewal:    &renewal,
			Cached:     cached,
			TraceID:    reqID,
			Timestamp:  h.now().UTC(),
		})

	case license.OutcomeExpired:
		renewal := license.Renewal(result.Record, h.now())
		h.logger.InfoContext(ctx, "expired license presented",
			slog.String("request_id", reqID),
		)
		render.Render(w, r, apierrors.NewErrorResponse(
			apierrors.NewWithDetails(
				apierrors.ErrLicenseExpired.StatusCode,
				apierrors.ErrLicenseExpired.ErrorCode,
				apierrors.ErrLicenseExpired.Message,
				renewal,
			)))

	default:
		h.logger.WarnContext(ctx, "license verification failed",
			slog.String("request_id", reqID),
			slog.String("error", result.Err.Error()),
		)
		if result.Record != nil {
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.FromValidationError(result.Err)))
			return
		}
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.FromImportError(result.Err)))
	}
}

// verify resolves the check result for text, consulting the cache first.
func (h *LicenseHandler) verify(ctx context.Context, text string) (license.CheckResult, bool) {
	var key string
	if h.cache != nil {
		key = license.CacheKey(text)
		if result, ok := h.cache.Get(ctx, key); ok {
			return result, true
		}
	}

	result := h.evaluate(ctx, text)
	if h.cache != nil {
		h.cache.Set(key, result)
	}
	return result, false
}

func (h *LicenseHandler) evaluate(ctx context.Context, text string) license.CheckResult {
	record, err := h.codec.Import(ctx, text)
	if err != nil {
		return license.CheckResult{Outcome: license.OutcomeUnresolved, Err: err}
	}
	if err := h.codec.Schema().Validate(record); err != nil {
		return license.CheckResult{Outcome: license.OutcomeUnresolved, Record: record, Err: err}
	}
	if record.Expired(h.now()) {
		return license.CheckResult{Outcome: license.OutcomeExpired, Record: record}
	}
	return license.CheckResult{Outcome: license.OutcomeValid, Record: record}
}

// Issue handles POST /api/license/issue
func (h *LicenseHandler) Issue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	auditID := uuid.NewString()

	req := &IssueRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	expires, err := time.Parse("2006-01-02", req.ExpiresAt)
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrValidation("expires_at", "must be a date in YYYY-MM-DD form")))
		return
	}

	record := license.NewRecord(map[string]any{
		license.AttrType:      req.Type,
		license.AttrExpiresAt: expires,
	}, h.codec.Schema())

	text, err := h.codec.Export(ctx, record, req.Label)
	if err != nil {
		h.logger.ErrorContext(ctx, "license issuing failed",
			slog.String("request_id", reqID),
			slog.String("audit_id", auditID),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apierrors.NewErrorResponse(issueError(err)))
		return
	}

	h.logger.InfoContext(ctx, "license issued",
		slog.String("request_id", reqID),
		slog.String("audit_id", auditID),
		slog.String("type", req.Type),
		slog.String("expires_at", req.ExpiresAt),
	)

	render.Status(r, http.StatusCreated)
	render.Render(w, r, &IssueResponse{
		License:   text,
		AuditID:   auditID,
		TraceID:   reqID,
		Timestamp: h.now().UTC(),
	})
}

// CacheStats handles GET /api/license/cache/stats
func (h *LicenseHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.cache.Stats())
}

// issueError maps export failures: bad attributes are the client's fault,
// missing key material is ours.
func issueError(err error) *apierrors.APIError {
	var valErr *license.ValidationError
	if errors.As(err, &valErr) {
		return apierrors.NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "License attributes are invalid", valErr.Reason)
	}
	return apierrors.ErrKeyMaterial
}

// attributeStrings flattens record attributes for the response body.
func attributeStrings(record *license.Record) map[string]string {
	if record == nil {
		return nil
	}
	out := make(map[string]string, len(record.Attributes))
	for key, value := range record.Attributes {
		switch v := value.(type) {
		case string:
			out[key] = v
		case time.Time:
			out[key] = v.Format("2006-01-02")
		}
	}
	return out
}
