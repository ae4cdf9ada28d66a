/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package restapi

import "net/http"

type handler struct {
	path   string
	method string
	handle http.HandlerFunc
}

func newHandler(path, method string, handle http.HandlerFunc) *handler {
	return &handler{
		path:   path,
		method: method,
		handle: handle,
	}
}

func (h *handler) Path() string {
	return h.path
}

func (h *handler) Method() string {
	return h.method
}

func (h *handler) Handler() http.HandlerFunc {
	return h.handle
}
