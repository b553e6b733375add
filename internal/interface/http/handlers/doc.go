// Package handlers holds the reusable pieces of the HTTP interface: health
// checks and middleware.
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("kv", handlers.NewPingCheck(store))
//	checker.AddCheck("catalog_api", handlers.NewBreakerCheck("catalog_api", client))
//
// Middleware composes with Chain:
//
//	h := handlers.ChainHandler(mux,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(1<<20),
//	)
//
// CSRF protection applies to cookie-authenticated requests only. Requests
// that carry a bearer token are exempt.
package handlers
