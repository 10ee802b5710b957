// Package middleware provides HTTP middleware for the subtitle index API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics keyed by route template
//   - gzip compression of large JSON responses such as search pages
package middleware
