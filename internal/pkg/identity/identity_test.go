/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fastqueue/fastqueue/pkg/errors"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("my-topic"))
	require.NoError(t, Validate("my_queue.v2"))
	require.NoError(t, Validate("ABC123"))
	require.NoError(t, Validate(strings.Repeat("a", 128)))

	for _, id := range []string{"", "white space", "no/slash", "no:colon", strings.Repeat("a", 129)} {
		err := Validate(id)
		require.Error(t, err, "expected error for %q", id)
		require.True(t, errors.IsBadRequest(err))
	}
}
