//go:build !sonic

package oplog

import (
	"github.com/goccy/go-json"
)

var jsonMarshalIndent = json.MarshalIndent
var jsonUnmarshal = json.Unmarshal
