// Package nodeid encodes and decodes Relay-style global node IDs.
package nodeid

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"relayloader/internal/model"
)

// Encode returns base64("<typeName>:<id>").
func Encode(typeName string, id interface{}) string {
	return base64.StdEncoding.EncodeToString([]byte(typeName + ":" + fmt.Sprint(id)))
}

// Decode splits a global id into its type name and local id.
func Decode(globalID string) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(globalID)
	if err != nil {
		return "", "", fmt.Errorf("invalid id: %w", err)
	}
	typeName, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", "", errors.New("invalid id: missing type separator")
	}
	if typeName == "" {
		return "", "", errors.New("invalid id: missing type name")
	}
	return typeName, id, nil
}

// ParseKey converts a decoded local id into the Go type of the model's primary key.
func ParseKey(m *model.Model, raw string) (interface{}, error) {
	f, ok := m.Field(m.PrimaryKey)
	if !ok {
		return raw, nil
	}
	switch f.Type {
	case model.TypeInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer id for %s: %w", m.Name, err)
		}
		return v, nil
	default:
		return raw, nil
	}
}
