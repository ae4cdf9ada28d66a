/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package common contains the contracts shared by the REST handlers and the HTTP
// server.
package common

import "net/http"

// HTTPHandler is an HTTP handler bound to a path and method.
type HTTPHandler interface {
	Path() string
	Method() string
	Handler() http.HandlerFunc
}
