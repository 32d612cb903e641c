package codec

import "encoding/json"

// JSONSerializer implements Serializer over encoding/json. It is the
// reference serializer for the self-describing document format spec
// calls for; any json.Marshal-compatible value round-trips through it.
type JSONSerializer struct{}

func (JSONSerializer) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer) Decode(b []byte, v any) error {
	return json.Unmarshal(b, v)
}
