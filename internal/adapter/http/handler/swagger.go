package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
)

const docsPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Escrow Ledger - API Docs</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: '/swagger/spec', dom_id: '#swagger-ui', layout: 'BaseLayout',
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset] });
  </script>
</body>
</html>`

// DocsHandler serves the OpenAPI document loaded at startup and a UI page over it.
type DocsHandler struct {
	spec []byte
	etag string
}

// NewDocsHandler wraps spec; an empty spec makes /swagger/spec answer 404.
func NewDocsHandler(spec []byte) *DocsHandler {
	h := &DocsHandler{spec: spec}
	if len(spec) > 0 {
		sum := sha256.Sum256(spec)
		h.etag = `"` + hex.EncodeToString(sum[:8]) + `"`
	}
	return h
}

// Spec returns the raw YAML, honoring If-None-Match.
func (h *DocsHandler) Spec(c *gin.Context) {
	if len(h.spec) == 0 {
		c.String(http.StatusNotFound, "OpenAPI document not loaded")
		return
	}
	c.Header("ETag", h.etag)
	if c.GetHeader("If-None-Match") == h.etag {
		c.AbortWithStatus(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/x-yaml", h.spec)
}

func (h *DocsHandler) UI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(docsPage))
}
