//go:build sonic

package oplog

import (
	"github.com/bytedance/sonic"
)

// ConfigStd sorts map keys like encoding/json, which keeps persisted logs byte stable.
var jsonMarshalIndent = sonic.ConfigStd.MarshalIndent
var jsonUnmarshal = sonic.ConfigStd.Unmarshal
