// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

import "log"

// Warning logs a non-fatal condition: noise exponent saturation,
// tau_s below the recommended minimum, strict mode disabled, or a
// lenient-mode arithmetic clamp. Kept as a thin wrapper (rather than a
// logging library dependency the core itself never needed) so tests
// and callers have one seam to intercept.
func Warning(format string, args ...any) {
	log.Printf("loihicx: warning: "+format, args...)
}
