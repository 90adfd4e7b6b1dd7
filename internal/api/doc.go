// Package api is the HTTP surface of the service: a JSON API, an SSE
// streaming endpoint, and the embedded single-page web UI.
//
// Routes:
//
//	GET    /                      web UI
//	GET    /health                liveness + document/chunk snapshot
//	GET    /ready                 readiness (database ping)
//	POST   /query                 RAG query with conversation memory
//	POST   /query/stream          same, streamed over SSE
//	POST   /upload                upload one document (multipart)
//	POST   /upload-batch          upload multiple documents (multipart)
//	POST   /upload-url            ingest a web page by URL
//	GET    /documents             list indexed documents
//	DELETE /documents/{id}        delete a document and its chunks
//	GET    /stats                 system statistics
//	GET    /sessions              list conversation sessions
//	POST   /sessions              create a session
//	GET    /sessions/{id}/export  export conversation history
//	DELETE /sessions/{id}         delete a session
//
// Handlers are thin: they parse, call a service, and map sentinel
// errors to statuses. Everything except the health probes runs behind
// the middleware chain Recovery → RequestID → Logging → CORS →
// RateLimit.
//
// Error responses are always {"error": <code>, "message": <detail>}.
package api
