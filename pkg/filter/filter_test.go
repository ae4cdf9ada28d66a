/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package filter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdmit(t *testing.T) {
	tests := []struct {
		name       string
		filters    map[string][]string
		attributes map[string]string
		want       bool
	}{
		{
			name:       "nil filters admit everything",
			filters:    nil,
			attributes: nil,
			want:       true,
		},
		{
			name:       "nil filters admit any attributes",
			filters:    nil,
			attributes: map[string]string{"color": "red"},
			want:       true,
		},
		{
			name:       "filters reject nil attributes",
			filters:    map[string][]string{"color": {"red"}},
			attributes: nil,
			want:       false,
		},
		{
			name:       "empty non-nil filters reject nil attributes",
			filters:    map[string][]string{},
			attributes: nil,
			want:       false,
		},
		{
			name:       "matching value admitted",
			filters:    map[string][]string{"color": {"red", "green"}},
			attributes: map[string]string{"color": "red"},
			want:       true,
		},
		{
			name:       "non-member value rejected",
			filters:    map[string][]string{"color": {"red"}},
			attributes: map[string]string{"color": "blue"},
			want:       false,
		},
		{
			name:       "missing key rejected",
			filters:    map[string][]string{"color": {"red"}, "size": {"L"}},
			attributes: map[string]string{"color": "red"},
			want:       false,
		},
		{
			name:       "extra attribute keys ignored",
			filters:    map[string][]string{"color": {"red"}},
			attributes: map[string]string{"color": "red", "size": "L"},
			want:       true,
		},
		{
			name:       "string values compare exactly",
			filters:    map[string][]string{"number": {"1"}},
			attributes: map[string]string{"number": "01"},
			want:       false,
		},
		{
			name: "all keys must match",
			filters: map[string][]string{
				"color": {"red"},
				"size":  {"S", "M", "L"},
			},
			attributes: map[string]string{"color": "red", "size": "M"},
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Admit(tt.filters, tt.attributes))
		})
	}
}
