// Package suites registers every test class of the harness. Import it for its
// side effects. Classes register in import path order.
package suites

import (
	_ "github.com/srg/btharness/internal/suites/a2dp"
	_ "github.com/srg/btharness/internal/suites/aics"
	_ "github.com/srg/btharness/internal/suites/hap"
	_ "github.com/srg/btharness/internal/suites/pairingsuite"
)
