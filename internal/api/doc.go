// Package api exposes the chat agent over REST and a WebSocket relay. Routes
// are served both at the root and under the /api prefix used by the web
// frontend.
package api
