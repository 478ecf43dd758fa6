package transporthttp

import (
	"encoding/json"
	"net/http"
	"strings"

	"example.com/webshopsessions/internal/logging"
)

const problemTypeBase = "https://webshop.example/problems/"

// Problem is an RFC 7807 error body.
type Problem struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title,omitempty"`
	Status   int                 `json:"status,omitempty"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
	Meta     map[string]any      `json:"meta,omitempty"`
}

// problemType turns a title like "store unavailable" into a stable type URI.
func problemType(title string) string {
	return problemTypeBase + strings.ReplaceAll(strings.ToLower(title), " ", "-")
}

// WriteProblem answers r with a problem document. The request id, when
// present, is echoed in meta so clients can quote it.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string, errs map[string][]string) {
	p := Problem{
		Type:     problemType(title),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Errors:   errs,
	}
	if id := logging.RequestID(r.Context()); id != "" {
		p.Meta = map[string]any{"request_id": id}
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}
