package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tagged JSON keys used when values leave the process (jsonb columns, the
// web API wire). Plain strings, numbers and booleans travel untagged.
const (
	tagOption   = "@option"
	tagRef      = "@ref"
	tagDateTime = "@datetime"
	tagGUID     = "@guid"
)

// EncodeValue converts a record value into its JSON-safe tagged form.
func EncodeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case OptionValue:
		return map[string]any{tagOption: x.Value}
	case *OptionValue:
		if x == nil {
			return nil
		}
		return EncodeValue(*x)
	case Reference:
		return map[string]any{tagRef: map[string]any{"kind": string(x.Kind), "id": x.ID.String()}}
	case *Reference:
		if x == nil {
			return nil
		}
		return EncodeValue(*x)
	case time.Time:
		return map[string]any{tagDateTime: x.UTC().Format(time.RFC3339Nano)}
	case *time.Time:
		if x == nil {
			return nil
		}
		return EncodeValue(*x)
	case uuid.UUID:
		return map[string]any{tagGUID: x.String()}
	case *uuid.UUID:
		if x == nil {
			return nil
		}
		return EncodeValue(*x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *int:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}

// DecodeValue reverses EncodeValue on a value produced by encoding/json.
func DecodeValue(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		switch x := v.(type) {
		case float64:
			if x == float64(int64(x)) {
				return int64(x), nil
			}
		case []any:
			return nil, fmt.Errorf("unsupported list value")
		}
		return v, nil
	}
	if raw, ok := m[tagOption]; ok {
		n, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("option value: want number, got %T", raw)
		}
		return OptionValue{Value: int(n)}, nil
	}
	if raw, ok := m[tagRef]; ok {
		inner, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("reference: want object, got %T", raw)
		}
		kind, _ := inner["kind"].(string)
		idStr, _ := inner["id"].(string)
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("reference id: %w", err)
		}
		return Reference{Kind: Kind(kind), ID: id}, nil
	}
	if raw, ok := m[tagDateTime]; ok {
		s, _ := raw.(string)
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("datetime: %w", err)
		}
		return t.UTC(), nil
	}
	if raw, ok := m[tagGUID]; ok {
		s, _ := raw.(string)
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("guid: %w", err)
		}
		return id, nil
	}
	return nil, fmt.Errorf("unknown tagged value %v", m)
}

// EncodeFields encodes every value of a payload.
func EncodeFields(f map[string]any) map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = EncodeValue(v)
	}
	return out
}

// DecodeRecord decodes a JSON object produced by EncodeFields.
func DecodeRecord(raw map[string]any) (Record, error) {
	out := make(Record, len(raw))
	for k, v := range raw {
		dv, err := DecodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", k, err)
		}
		if dv != nil {
			out[k] = dv
		}
	}
	return out, nil
}

// MarshalFields encodes a payload to JSON bytes.
func MarshalFields(f map[string]any) ([]byte, error) {
	return json.Marshal(EncodeFields(f))
}

// UnmarshalRecord decodes JSON bytes produced by MarshalFields.
func UnmarshalRecord(data []byte) (Record, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return DecodeRecord(raw)
}

// WritableFields strips the id column and the store-assigned audit columns
// from a payload and returns the id column value, if any.
func WritableFields(kind Kind, f Fields) (Fields, uuid.UUID) {
	out := make(Fields, len(f))
	var id uuid.UUID
	for k, v := range f {
		switch k {
		case kind.IDColumn():
			switch x := v.(type) {
			case uuid.UUID:
				id = x
			case string:
				id, _ = uuid.Parse(x)
			}
		case ColCreatedOn, ColModifiedOn:
		default:
			out[k] = v
		}
	}
	return out, id
}
