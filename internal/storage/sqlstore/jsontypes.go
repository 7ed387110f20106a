package sqlstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap and JSONArray are gorm-compatible jsonb scan/value adapters,
// grounded on the teacher's pattern of storing free-form metadata as jsonb
// columns (internal/types/chat_manage.go's metadata fields).
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return fmt.Errorf("sqlstore: unsupported jsonb scan type %T", value)
		}
	}
	return json.Unmarshal(bytes, m)
}

type JSONArray []string

func (a JSONArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal([]string(a))
}

func (a *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return fmt.Errorf("sqlstore: unsupported jsonb scan type %T", value)
		}
	}
	return json.Unmarshal(bytes, a)
}
