package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// converts any JSON-serializable value into a protobuf Struct
// the value must encode as a JSON object
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("codec: %T is not an object: %w", v, err)
	}

	return structpb.NewStruct(fields)
}

// fills v from a protobuf Struct, using the same field names as ToStruct
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("codec: nil struct")
	}

	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}
