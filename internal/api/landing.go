package api

import (
	"net/http"
	"strings"
)

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Policy Assistant</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #f8fafc; color: #0f172a; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .card { max-width: 640px; width: 90%; background: #ffffff; border-radius: 12px; padding: 2.5rem; box-shadow: 0 10px 30px rgba(15,23,42,0.12); }
  h1 { font-size: 1.6rem; margin-bottom: 0.5rem; }
  .subtitle { color: #475569; margin-bottom: 1.5rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin: 1.25rem 0 0.5rem; }
  pre { background: #0f172a; color: #e2e8f0; border-radius: 8px; padding: 1rem; overflow-x: auto; font-size: 0.85rem; line-height: 1.5; }
  .endpoint { font-family: "SF Mono", Menlo, monospace; font-size: 0.9rem; color: #4338ca; }
</style>
</head>
<body>
<div class="card">
  <h1>Policy Assistant</h1>
  <p class="subtitle">Answers questions about company policy documents, with citations.</p>

  <div class="section-title">Endpoints</div>
  <p><span class="endpoint">GET /health</span> health and index status</p>
  <p><span class="endpoint">POST /api/query/basic</span> single-shot summary over retrieved chunks</p>
  <p><span class="endpoint">POST /api/query/advanced</span> cited answer, optional summary and follow-ups</p>
  <p><span class="endpoint">GET | DELETE /api/history</span> query history</p>

  <div class="section-title">Try it</div>
  <pre><code>curl -s localhost:8000/api/query/advanced \
  -H 'Content-Type: application/json' \
  -d '{"question": "How many vacation days do I get?", "summarize": true}'</code></pre>
</div>
</body>
</html>`

// NewLandingHandler serves the landing page to browsers and InfoResponse to everything else.
func NewLandingHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeError(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
			return
		}
		if strings.Contains(r.Header.Get("Accept"), "text/html") {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(landingHTML))
			return
		}
		writeJSON(w, http.StatusOK, InfoResponse{
			Message: "Policy RAG API",
			Version: version,
			Health:  "/health",
		})
	}
}
