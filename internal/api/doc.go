// Package api implements the JSON HTTP surface of the query service.
//
// Routes:
//
//	POST /api/v1/query   run a retrieval query
//	POST /api/v1/index   index a transcript into a workspace namespace
//	GET  /health         liveness probe
//	GET  /ready          readiness probe (checks the database pool)
//
// The middleware chain, outermost first, is
// recovery -> request-id -> logging -> CORS -> rate limit -> routes.
// Request IDs travel in the X-Request-ID header and the request context.
package api
