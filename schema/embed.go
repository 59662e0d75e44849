package schema

import _ "embed"

// ConfigV1Schema contains the JSON schema for servectl.yaml documents.
//
//go:embed servectl.v1.json
var ConfigV1Schema []byte
