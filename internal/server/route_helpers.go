package server

import (
	"net/http"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/handlers"
)

// RouteHandler is a function type for HTTP handlers
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter maps HTTP methods to handlers
type MethodRouter map[string]RouteHandler

// RouteByMethod routes requests based on HTTP method with standardized error handling
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	handler, ok := routes[r.Method]
	if !ok {
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	handler(w, r)
}

// RouteCRUD is a convenience function for standard CRUD operations (GET, POST, PUT, DELETE)
func RouteCRUD(w http.ResponseWriter, r *http.Request, get, post, put, delete RouteHandler) {
	routes := make(MethodRouter)
	if get != nil {
		routes[http.MethodGet] = get
	}
	if post != nil {
		routes[http.MethodPost] = post
	}
	if put != nil {
		routes[http.MethodPut] = put
	}
	if delete != nil {
		routes[http.MethodDelete] = delete
	}
	RouteByMethod(w, r, routes)
}

// RouteResourceCollection handles standard list + create pattern
// GET -> list, POST -> create
func RouteResourceCollection(w http.ResponseWriter, r *http.Request, list, create RouteHandler) {
	RouteCRUD(w, r, list, create, nil, nil)
}

// RouteResourceItem handles standard get + update + delete pattern
// GET -> get, PUT -> update, DELETE -> delete
func RouteResourceItem(w http.ResponseWriter, r *http.Request, get, update, delete RouteHandler) {
	RouteCRUD(w, r, get, nil, update, delete)
}
