// Package router mounts the HTTP handlers on a gin engine.
package router

import (
	"net/http"

	"github.com/erp/invoicerouter/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// RouteRegistrar mounts a set of routes on a router group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router collects registrars and mounts them under /api/{version}
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithAPIVersion sets the API version segment (default "v1")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a Router on engine
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register queues registrars for Setup
func (r *Router) Register(registrars ...RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrars...)
	return r
}

// Setup mounts every queued registrar and returns the API group
func (r *Router) Setup() *gin.RouterGroup {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, reg := range r.registrars {
		reg.RegisterRoutes(api)
	}
	return api
}

// DomainGroup is a RouteRegistrar for the routes of one API area
type DomainGroup struct {
	name       string
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates an empty group mounted at prefix
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Name identifies the group in logs
func (dg *DomainGroup) Name() string { return dg.name }

// Prefix is the path the group is mounted at
func (dg *DomainGroup) Prefix() string { return dg.prefix }

// Use adds middleware that runs for every route of the group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// Handle adds a route
func (dg *DomainGroup) Handle(method, path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, route{method: method, path: path, handlers: handlers})
	return dg
}

// GET adds a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodGet, path, handlers...)
}

// POST adds a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.Handle(http.MethodPost, path, handlers...)
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix, dg.middleware...)
	for _, rt := range dg.routes {
		group.Handle(rt.method, rt.path, rt.handlers...)
	}
}

// DocumentRoutes groups the document routing endpoints:
//
//	POST /documents/route
//	POST /documents/route/batch
//	GET  /policy
//
// batchMiddleware runs only in front of the batch endpoint.
func DocumentRoutes(h *handler.DocumentHandler, batchMiddleware ...gin.HandlerFunc) []RouteRegistrar {
	batch := append(append([]gin.HandlerFunc{}, batchMiddleware...), h.RouteBatch)
	documents := NewDomainGroup("documents", "/documents").
		POST("/route", h.RouteDocument).
		POST("/route/batch", batch...)
	policy := NewDomainGroup("policy", "/policy").
		GET("", h.GetPolicy)
	return []RouteRegistrar{documents, policy}
}

// RegisterHealth mounts GET /health at the engine root, outside API
// versioning, so probes survive version bumps
func RegisterHealth(engine *gin.Engine, h *handler.HealthHandler) {
	engine.GET("/health", h.Health)
}
