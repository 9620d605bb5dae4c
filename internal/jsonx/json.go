// Package jsonx routes JSON encoding through json-iterator.
package jsonx

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// numberJSON decodes numbers into Number so integer literals survive a
// decode/encode round trip.
var numberJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
	Valid         = json.Valid
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder

	// UnmarshalNumbers is Unmarshal with numbers kept as Number.
	UnmarshalNumbers = numberJSON.Unmarshal
)

type (
	RawMessage = jsoniter.RawMessage
	Number     = jsoniter.Number
)
