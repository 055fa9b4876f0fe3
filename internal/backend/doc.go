// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the HTTP client for the hypve chat server.
//
// The server exposes:
//
//	POST /generate   {"prompt": "..."}            -> {"response": "..."}
//	POST /generate   {"prompt": "...", "stream": true}
//	                 -> text/event-stream of data: {...} lines ending in data: [DONE]
//	GET  /get-user                                 -> {"id": ..., "email": "..."}
//	GET  /auth/google, /auth/github                (browser redirects)
//
// Any transport failure or non-2xx status is reported as ErrServerBusy so
// the caller can show a single static message. Requests are never retried.
package backend
