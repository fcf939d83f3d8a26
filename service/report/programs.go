package report

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/ledgerlens/ledgerlens/service/analysis"
)

// known_programs.json is the built-in lookup table for common mainnet
// programs. A user-supplied table replaces it wholesale.
//
//go:embed known_programs.json
var defaultProgramsJSON []byte

// DefaultKnownPrograms returns the built-in program lookup table.
func DefaultKnownPrograms() []analysis.KnownProgram {
	var programs []analysis.KnownProgram
	if err := json.Unmarshal(defaultProgramsJSON, &programs); err != nil {
		// The embedded table is validated by tests; reaching this means a
		// broken build, not a runtime condition.
		panic(fmt.Sprintf("invalid embedded program table: %v", err))
	}
	return programs
}

// LoadKnownPrograms reads a program lookup table from a JSON file. An empty
// path selects the built-in table. A file that cannot be read or parsed
// also falls back to the built-in table, with a warning, so a bad table
// never blocks report generation.
func LoadKnownPrograms(path string, logger *slog.Logger) []analysis.KnownProgram {
	if path == "" {
		return DefaultKnownPrograms()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read known programs file, using built-in table",
			"path", path,
			"error", err,
		)
		return DefaultKnownPrograms()
	}

	var programs []analysis.KnownProgram
	if err := json.Unmarshal(raw, &programs); err != nil {
		logger.Warn("failed to parse known programs file, using built-in table",
			"path", path,
			"error", err,
		)
		return DefaultKnownPrograms()
	}

	return programs
}
