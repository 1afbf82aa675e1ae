// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time to ensure the CLI and library work
// correctly regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// TrainManifestSchema is the embedded train-manifest JSON schema.
//
//go:embed train-manifest.schema.json
var TrainManifestSchema []byte
