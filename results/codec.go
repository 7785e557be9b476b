package results

import (
	"encoding/json"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

// encodeResult serializes a result as snappy compressed JSON.
func encodeResult(r *types.TestResult) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "encoding test result")
	}
	return snappy.Encode(nil, raw), nil
}

func decodeResult(b []byte) (*types.TestResult, error) {
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing test result")
	}
	var r types.TestResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errors.Wrap(err, "decoding test result")
	}
	return &r, nil
}
