package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/shiden34/internal/ir"
)

// marshalObject converts an IRObject to canonical JSON TEXT for storage.
func marshalObject(what string, obj ir.IRObject) (string, error) {
	if obj == nil {
		obj = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	return string(data), nil
}

// marshalEvents stores events as a canonical JSON array of {name, args}.
func marshalEvents(events []ir.Event) (string, error) {
	data, err := ir.MarshalCanonical(ir.EventsValue(events))
	if err != nil {
		return "", fmt.Errorf("marshal events: %w", err)
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT. IRObject.UnmarshalJSON decodes
// numbers through json.Number, so int64 values survive intact.
func unmarshalObject(what, data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return obj, nil
}

func unmarshalEvents(data string) ([]ir.Event, error) {
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	arr, ok := v.(ir.IRArray)
	if !ok {
		return nil, fmt.Errorf("unmarshal events: expected array, got %T", v)
	}

	events := make([]ir.Event, 0, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(ir.IRObject)
		if !ok {
			return nil, fmt.Errorf("unmarshal events: [%d] is %T", i, elem)
		}
		name, err := obj.String("name")
		if err != nil {
			return nil, fmt.Errorf("unmarshal events: [%d]: %w", i, err)
		}
		args, ok := obj["args"].(ir.IRObject)
		if !ok {
			return nil, fmt.Errorf("unmarshal events: [%d]: args is not an object", i)
		}
		events = append(events, ir.Event{Name: name, Args: args})
	}
	return events, nil
}
