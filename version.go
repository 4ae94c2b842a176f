package furrow

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var version string

// Version is the released version of furrow.
var Version = strings.TrimSpace(version)
