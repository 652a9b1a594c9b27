package api

import (
	"errors"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/truthstore/pkg/ledger"
	"github.com/papercomputeco/truthstore/pkg/reducer"
	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/storage"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`

	// MergedInto is set when the requested key was merged away.
	MergedInto string `json:"merged_into,omitempty"`
}

var (
	errMissingOwner = errors.New(OwnerHeader + " header is required")
	errNegativePage = errors.New("limit and offset must not be negative")
)

// badRequestError marks client input the handlers could not parse.
type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &badRequestError{err: err}
}

// statusFor maps store errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		bad         *badRequestError
		validateErr validator.ValidationErrors
	)

	switch {
	case errors.As(err, &bad), errors.As(err, &validateErr),
		errors.Is(err, errMissingOwner),
		errors.Is(err, ledger.ErrInvalidMergeRequest):
		return fiber.StatusBadRequest

	case errors.Is(err, ledger.ErrEntityMerged),
		errors.Is(err, ledger.ErrEntityNotFound),
		errors.Is(err, ledger.ErrFieldNotFound),
		errors.Is(err, schema.ErrSchemaNotFound),
		storage.IsNotFound(err):
		return fiber.StatusNotFound

	case errors.Is(err, ledger.ErrSelfMerge),
		errors.Is(err, ledger.ErrCrossOwnerMerge),
		errors.Is(err, ledger.ErrAlreadyMerged),
		errors.Is(err, ledger.ErrMergeTargetAlreadyMerged),
		errors.Is(err, ledger.ErrEntityTypeMismatch),
		errors.Is(err, schema.ErrSchemaVersionConflict):
		return fiber.StatusConflict

	case errors.Is(err, ledger.ErrObservationRejected),
		errors.Is(err, schema.ErrSchemaValidationFailed),
		errors.Is(err, reducer.ErrMalformedObservation):
		return fiber.StatusUnprocessableEntity
	}

	return fiber.StatusInternalServerError
}

// fail writes the error response for err. Merged keys point the caller at
// the surviving key through the Location header.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var merged *ledger.MergedError
	if errors.As(err, &merged) {
		resp.MergedInto = merged.Target
		c.Set(fiber.HeaderLocation, "/v1/snapshots/"+url.PathEscape(merged.Target))
	}

	if status == fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
		resp.Error = "internal server error"
	}

	return c.Status(status).JSON(resp)
}
