/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package identity validates the identifiers shared by topics and queues.
package identity

import (
	"regexp"

	"github.com/fastqueue/fastqueue/pkg/errors"
)

const maxLength = 128

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`) //nolint:gochecknoglobals

// Validate returns a 'bad request' error when the given ID is empty, too long or
// contains characters outside [A-Za-z0-9._-].
func Validate(id string) error {
	if id == "" {
		return errors.NewBadRequestf("id must not be empty")
	}

	if len(id) > maxLength {
		return errors.NewBadRequestf("id [%s] exceeds %d characters", id, maxLength)
	}

	if !idPattern.MatchString(id) {
		return errors.NewBadRequestf("id [%s] contains invalid characters", id)
	}

	return nil
}
