/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package filter decides whether a published message is admitted to a subscribing queue.
package filter

// Admit returns true if a message with the given attributes is admitted by the given
// queue filters. A nil filter set admits everything. A non-nil filter set rejects
// messages without attributes. Otherwise every filter key must be present in the
// attributes and its value must be a member of the filter's allowed-value set.
// Extra attribute keys are ignored.
func Admit(filters map[string][]string, attributes map[string]string) bool {
	if filters == nil {
		return true
	}

	if attributes == nil {
		return false
	}

	for key, allowedValues := range filters {
		value, ok := attributes[key]
		if !ok {
			return false
		}

		if !contains(allowedValues, value) {
			return false
		}
	}

	return true
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}

	return false
}
