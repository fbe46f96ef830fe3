package utils

import "encoding/json"

func Serialize(o any) ([]byte, error) {
	return json.Marshal(o)
}

// SerializeIndent is Serialize for human readers.
func SerializeIndent(o any) ([]byte, error) {
	return json.MarshalIndent(o, "", "  ")
}

func Unserialize(b []byte, o any) error {
	return json.Unmarshal(b, o)
}
