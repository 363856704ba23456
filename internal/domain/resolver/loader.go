package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// ReadDeviceFiles loads a DeviceResolver from the device key and device
// aggregation files.
func ReadDeviceFiles(keyPath, aggPath string) (*DeviceResolver, error) {
	keyMap, err := readKeyMap(keyPath)
	if err != nil {
		return nil, err
	}
	raw, err := readData(aggPath)
	if err != nil {
		return nil, err
	}
	var agg []AggregationRow
	if err := json.Unmarshal(raw, &agg); err != nil {
		return nil, fmt.Errorf("decode device aggregation %s: %w", aggPath, err)
	}
	return NewDeviceResolver(keyMap, agg), nil
}

// ReadBodyPartFile loads a BodyPartResolver from the body part key file.
func ReadBodyPartFile(keyPath string) (*BodyPartResolver, error) {
	keyMap, err := readKeyMap(keyPath)
	if err != nil {
		return nil, err
	}
	return NewBodyPartResolver(keyMap), nil
}

// LoadDevice returns nil when either file is unset, missing or malformed.
// Device filtering then falls back to plain substring matching.
func LoadDevice(keyPath, aggPath string, logger zerolog.Logger) *DeviceResolver {
	if keyPath == "" || aggPath == "" {
		logger.Info().Msg("device resolver not configured")
		return nil
	}
	r, err := ReadDeviceFiles(keyPath, aggPath)
	if err != nil {
		logger.Warn().Err(err).Msg("device resolver disabled")
		return nil
	}
	logger.Info().Int("keys", len(r.keyMap)).Int("aggregation_rows", len(r.agg)).Msg("device resolver loaded")
	return r
}

// LoadBodyPart returns nil when the file is unset, missing or malformed.
// Body part filtering is then skipped unless a checklist restricts it.
func LoadBodyPart(keyPath string, logger zerolog.Logger) *BodyPartResolver {
	if keyPath == "" {
		logger.Info().Msg("body part resolver not configured")
		return nil
	}
	r, err := ReadBodyPartFile(keyPath)
	if err != nil {
		logger.Warn().Err(err).Msg("body part resolver disabled")
		return nil
	}
	logger.Info().Int("keys", len(r.keyMap)).Msg("body part resolver loaded")
	return r
}

func readKeyMap(path string) (map[string][]string, error) {
	raw, err := readData(path)
	if err != nil {
		return nil, err
	}
	var m map[string]StringList
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode key map %s: %w", path, err)
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

// readData returns the file contents, unwrapped from a top-level "data" key
// when the document has one.
func readData(path string) (json.RawMessage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(b, &wrapper); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if data, ok := wrapper["data"]; ok {
			return data, nil
		}
	}
	return b, nil
}
