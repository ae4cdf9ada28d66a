/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package errors

import (
	"errors"
	"fmt"
)

var (
	notFoundType      = &notFound{}      //nolint:gochecknoglobals
	alreadyExistsType = &alreadyExists{} //nolint:gochecknoglobals
	badRequestType    = &badRequest{}    //nolint:gochecknoglobals
	conflictType      = &conflict{}      //nolint:gochecknoglobals
	transientType     = &transient{}     //nolint:gochecknoglobals
)

// NewNotFound returns a 'not found' error that wraps the given error in order to indicate
// to the caller that a referenced entity does not exist.
func NewNotFound(err error) error {
	return &notFound{err: err}
}

// NewNotFoundf returns a 'not found' error in order to indicate to the caller that a
// referenced entity does not exist.
func NewNotFoundf(format string, a ...interface{}) error {
	return &notFound{err: fmt.Errorf(format, a...)}
}

// IsNotFound returns true if the given error is a 'not found' error.
func IsNotFound(err error) bool {
	return errors.As(err, &notFoundType)
}

// NewAlreadyExists returns an 'already exists' error in order to indicate to the caller
// that an entity with the given identity already exists.
func NewAlreadyExists(err error) error {
	return &alreadyExists{err: err}
}

// NewAlreadyExistsf returns an 'already exists' error in order to indicate to the caller
// that an entity with the given identity already exists.
func NewAlreadyExistsf(format string, a ...interface{}) error {
	return &alreadyExists{err: fmt.Errorf(format, a...)}
}

// IsAlreadyExists returns true if the given error is an 'already exists' error.
func IsAlreadyExists(err error) bool {
	return errors.As(err, &alreadyExistsType)
}

// NewBadRequest returns a 'bad request' error that wraps the given error in order to
// indicate to the caller that the request was invalid.
func NewBadRequest(err error) error {
	return &badRequest{err: err}
}

// NewBadRequestf returns a 'bad request' error in order to indicate to the caller that
// the request was invalid.
func NewBadRequestf(format string, a ...interface{}) error {
	return &badRequest{err: fmt.Errorf(format, a...)}
}

// IsBadRequest returns true if the given error is a 'bad request' error.
func IsBadRequest(err error) bool {
	return errors.As(err, &badRequestType)
}

// NewConflict returns a 'conflict' error. The broker core currently has no operation that
// produces it; the kind is reserved for forward compatibility of the error contract.
func NewConflict(err error) error {
	return &conflict{err: err}
}

// IsConflict returns true if the given error is a 'conflict' error.
func IsConflict(err error) bool {
	return errors.As(err, &conflictType)
}

// NewTransient returns a transient error that wraps the given error in order to indicate to
// the caller that a retry may resolve the problem, whereas a non-transient (persistent)
// error will always fail with the same outcome if retried.
func NewTransient(err error) error {
	return &transient{err: err}
}

// NewTransientf returns a transient error in order to indicate to the caller that a retry
// may resolve the problem.
func NewTransientf(format string, a ...interface{}) error {
	return &transient{err: fmt.Errorf(format, a...)}
}

// IsTransient returns true if the given error is a 'transient' error.
func IsTransient(err error) bool {
	return errors.As(err, &transientType)
}

type notFound struct {
	err error
}

func (e *notFound) Error() string {
	return e.err.Error()
}

func (e *notFound) Unwrap() error {
	return e.err
}

type alreadyExists struct {
	err error
}

func (e *alreadyExists) Error() string {
	return e.err.Error()
}

func (e *alreadyExists) Unwrap() error {
	return e.err
}

type badRequest struct {
	err error
}

func (e *badRequest) Error() string {
	return e.err.Error()
}

func (e *badRequest) Unwrap() error {
	return e.err
}

type conflict struct {
	err error
}

func (e *conflict) Error() string {
	return e.err.Error()
}

func (e *conflict) Unwrap() error {
	return e.err
}

type transient struct {
	err error
}

func (e *transient) Error() string {
	return e.err.Error()
}

func (e *transient) Unwrap() error {
	return e.err
}
