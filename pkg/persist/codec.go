package persist

import (
	"bytes"
	"encoding/json"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Codec converts slice values to byte payloads and back.
//
// Implementations must satisfy the round-trip law: Decode(Encode(v)) == v for
// every value a store's reducers can produce. Store restart-safety depends on
// it.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

type jsonCodec[T any] struct{}

// JSON returns a Codec that marshals values with encoding/json.
func JSON[T any]() Codec[T] {
	return jsonCodec[T]{}
}

func (jsonCodec[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

type yamlCodec[T any] struct{}

// YAML returns a Codec that marshals values with gopkg.in/yaml.v3.
func YAML[T any]() Codec[T] {
	return yamlCodec[T]{}
}

func (yamlCodec[T]) Encode(v T) ([]byte, error) {
	return yaml.Marshal(v)
}

func (yamlCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := yaml.Unmarshal(data, &v)
	return v, err
}

type tomlCodec[T any] struct{}

// TOML returns a Codec that marshals values with BurntSushi/toml.
// TOML documents must be tables, so T must be a struct or map type.
func TOML[T any]() Codec[T] {
	return tomlCodec[T]{}
}

func (tomlCodec[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (tomlCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := toml.Unmarshal(data, &v)
	return v, err
}
