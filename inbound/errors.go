package inbound

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-bookings/core"
	goerrors "github.com/goliatone/go-errors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	TextCode string         `json:"text_code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func inboundBadInput(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BookingErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// renderError writes err as the JSON error envelope. status overrides the
// mapped code when non-zero.
func renderError(c *gin.Context, mapper func(error) error, err error, status int) {
	mapped := err
	if mapper != nil {
		mapped = mapper(err)
	}
	detail := errorDetail{TextCode: core.BookingErrorInternal, Message: "An unexpected error occurred"}
	code := http.StatusInternalServerError
	var rich *goerrors.Error
	if goerrors.As(mapped, &rich) {
		if strings.TrimSpace(rich.TextCode) != "" {
			detail.TextCode = rich.TextCode
		}
		if rich.Category != goerrors.CategoryInternal && strings.TrimSpace(rich.Message) != "" {
			detail.Message = rich.Message
		}
		if rich.Code > 0 {
			code = rich.Code
		}
		if rich.Category != goerrors.CategoryInternal && len(rich.Metadata) > 0 {
			detail.Metadata = rich.Metadata
		}
	}
	if status > 0 {
		code = status
	}
	c.AbortWithStatusJSON(code, errorBody{Error: detail})
}
