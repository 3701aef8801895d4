// Package schemas embeds the JSON schemas of the YAML files read by ubcal.
package schemas

import _ "embed"

// JobSchemaJSON is the schema of a calibration job file.
//
//go:embed job.schema.json
var JobSchemaJSON string

// ProjectSchemaJSON is the schema of .ubcal.yaml.
//
//go:embed project.schema.json
var ProjectSchemaJSON string
