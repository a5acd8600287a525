//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// apiSpec is a minimal hand-maintained OpenAPI document served under
// /swagger when the binary is built with -tags=swagger. Regenerate with
// `make swagger-gen` after changing handler annotations.
var apiSpec = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "inferd API",
	Description:      "HTTP API for medical image inference.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  swaggerTemplate,
}

const swaggerTemplate = `{
  "schemes": {{ marshal .Schemes }},
  "swagger": "2.0",
  "info": {
    "title": "{{.Title}}",
    "description": "{{escape .Description}}",
    "version": "{{.Version}}"
  },
  "host": "{{.Host}}",
  "basePath": "{{.BasePath}}",
  "paths": {}
}`

func init() {
	swag.Register(apiSpec.InstanceName(), apiSpec)
}

// MountSwagger serves the swagger UI at /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}
