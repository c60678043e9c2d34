/*************************************************************************
 * Copyright 2018 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package version reports the build identity of the AOT cache, including
// the on-disk format revision baked into every fingerprint cookie.
package version

import (
	"fmt"
	"io"
	"time"
)

const (
	MajorVersion int = 0
	MinorVersion int = 1
	PointVersion int = 0

	// FormatCookie is the format-version tag stored in every config
	// fingerprint. Bumping it invalidates every existing cache file.
	FormatCookie uint32 = 1
)

var (
	BuildDate time.Time = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func PrintVersion(wtr io.Writer) {
	fmt.Fprintf(wtr, "Version:\t%d.%d.%d\n", MajorVersion, MinorVersion, PointVersion)
	fmt.Fprintf(wtr, "BuildDate:\t%s\n", BuildDate.Format(`2006-01-02 15:04:05`))
	fmt.Fprintf(wtr, "FormatCookie:\t%d\n", FormatCookie)
}
