// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the API request and response JSON Schema files.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/userauth/internal/api"
)

func main() {
	written, err := generate("schemas")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schemas: %v\n", err)
		os.Exit(1)
	}
	for _, path := range written {
		fmt.Printf("Generated %s\n", path)
	}
}

// generate writes one <name>.schema.json per API component into outDir and
// returns the written paths in name order.
func generate(outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, oops.Code("SCHEMA_DIR_CREATE_FAILED").With("path", outDir).Wrap(err)
	}

	schemas := api.ComponentSchemas()
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	written := make([]string, 0, len(names))
	for _, name := range names {
		data, err := json.MarshalIndent(schemas[name], "", "  ")
		if err != nil {
			return nil, oops.Code("SCHEMA_ENCODE_FAILED").With("schema", name).Wrap(err)
		}
		outPath := filepath.Join(outDir, strings.ToLower(name)+".schema.json")
		if err := os.WriteFile(outPath, append(data, '\n'), 0o600); err != nil {
			return nil, oops.Code("SCHEMA_WRITE_FAILED").With("path", outPath).Wrap(err)
		}
		written = append(written, outPath)
	}
	return written, nil
}
