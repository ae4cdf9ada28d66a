/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"github.com/fastqueue/fastqueue/internal/pkg/log"
)

// setLogLevels sets the log levels for individual modules as well as the default
// level. An empty spec leaves the defaults in place.
func setLogLevels(logSpec string) {
	if logSpec == "" {
		return
	}

	if err := log.SetSpec(logSpec); err != nil {
		logger.Warnf("Invalid log spec [%s]: %s. It needs to be in the following format: "+
			"module1=level1:module2=level2:defaultLevel", logSpec, err)

		log.SetDefaultLevel(log.INFO)
	}
}
