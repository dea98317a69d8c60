package api

import (
	_ "embed"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed openapi.yaml
var openAPISpec string

// SpecHandler serves the OpenAPI YAML spec with runtime placeholders
// replaced. The embedded file contains {issuer} so the document doesn't have
// to know the token issuer; it is substituted here before returning.
func SpecHandler(issuer string) echo.HandlerFunc {
	spec := strings.ReplaceAll(openAPISpec, "{issuer}", issuer)
	return func(c echo.Context) error {
		return c.Blob(http.StatusOK, "application/yaml", []byte(spec))
	}
}

// SwaggerHandler serves a Swagger UI page that points at the spec. The page
// uses the CDN-hosted assets so no static files are checked in.
func SwaggerHandler(specURL string) echo.HandlerFunc {
	html := strings.ReplaceAll(swaggerHTML, "${SPEC_URL}", specURL)
	return func(c echo.Context) error {
		return c.HTML(http.StatusOK, html)
	}
}

const swaggerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <title>Workflow Registry API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
  <script>
  window.onload = function() {
    window.ui = SwaggerUIBundle({
      url: "${SPEC_URL}",
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: "BaseLayout",
    });
  }
  </script>
</body>
</html>`
