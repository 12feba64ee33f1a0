// api_docs.go implements the handler that lists the registered /api/v1 routes.
package admin

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

const apiPrefix = "/api/v1/"

// RouteDoc describes one registered path and the methods it accepts.
type RouteDoc struct {
	URI     string   `json:"uri"`
	Methods []string `json:"methods"`
	Action  string   `json:"action"`
}

// @Summary      API route listing
// @Tags         Admin
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   RouteDoc
// @Failure      403  {object}  map[string]interface{}  "Admin role required"
// @Router       /api/v1/admin/api-docs [get]
// APIDocsHandler lists the routes under /api/v1 grouped by path. routes is
// called per request so the listing reflects the final engine.
// GET /api/v1/admin/api-docs
func APIDocsHandler(routes func() gin.RoutesInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, BuildRouteDocs(routes()))
	}
}

// BuildRouteDocs groups routes by path, keeping only /api/v1 paths and
// dropping HEAD. Output is sorted by URI.
func BuildRouteDocs(routes gin.RoutesInfo) []RouteDoc {
	byPath := make(map[string]*RouteDoc)
	order := make([]string, 0)
	for _, r := range routes {
		if !strings.HasPrefix(r.Path, apiPrefix) || r.Method == http.MethodHead {
			continue
		}
		uri := strings.TrimPrefix(r.Path, "/")
		doc, ok := byPath[uri]
		if !ok {
			doc = &RouteDoc{URI: uri, Action: actionName(r.Handler)}
			byPath[uri] = doc
			order = append(order, uri)
		}
		doc.Methods = append(doc.Methods, r.Method)
	}

	sort.Strings(order)
	docs := make([]RouteDoc, 0, len(order))
	for _, uri := range order {
		doc := byPath[uri]
		sort.Strings(doc.Methods)
		docs = append(docs, *doc)
	}
	return docs
}

// actionName shortens a handler's function name to "pkg.(*Type).Method".
func actionName(handler string) string {
	if i := strings.LastIndex(handler, "/"); i >= 0 {
		handler = handler[i+1:]
	}
	return strings.TrimSuffix(handler, ".func1")
}
