package config

import _ "embed"

//go:embed schema/notelock.schema.json
var overlaySchema []byte
