package root

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	applog "github.com/janisto/hello-server/internal/platform/logging"
)

// Greeting is the fixed body served on the root route.
const Greeting = "Hello, World!"

// DefaultContentType is used when Register is given an empty content type.
const DefaultContentType = "text/plain; charset=utf-8"

// GetOutput is the root response. Body is written verbatim.
type GetOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// Register wires the root route into the provided API.
func Register(api huma.API, contentType string) {
	if contentType == "" {
		contentType = DefaultContentType
	}
	body := []byte(Greeting)

	huma.Register(api, huma.Operation{
		OperationID: "get-root",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Greeting",
		Description: "Returns the fixed plaintext greeting.",
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Greeting text",
				Content: map[string]*huma.MediaType{
					contentType: {Schema: &huma.Schema{Type: huma.TypeString, Examples: []any{Greeting}}},
				},
			},
		},
	}, func(ctx context.Context, _ *struct{}) (*GetOutput, error) {
		applog.LogDebug(ctx, "root get", zap.String("path", "/"))
		return &GetOutput{ContentType: contentType, Body: body}, nil
	})
}
