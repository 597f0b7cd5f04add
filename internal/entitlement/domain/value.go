package domain

import "encoding/json"

// FeatureValue is the decoded form of a feature entitlement blob.
type FeatureValue struct {
	Included bool `json:"included"`
}

// LimitValue is the decoded form of a limit entitlement blob.
type LimitValue struct {
	Max int `json:"max"`
}

// DecodeFeatureValue decodes {"included": bool}. Malformed or empty input
// decodes to not-included; the second return reports whether the blob was
// well formed so callers can log the corruption.
func DecodeFeatureValue(raw []byte) (FeatureValue, bool) {
	if len(raw) == 0 {
		return FeatureValue{}, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return FeatureValue{}, false
	}
	encoded, ok := probe["included"]
	if !ok {
		return FeatureValue{}, false
	}
	var included bool
	if err := json.Unmarshal(encoded, &included); err != nil {
		return FeatureValue{}, false
	}
	return FeatureValue{Included: included}, true
}

// DecodeLimitValue decodes {"max": int}. Malformed or empty input decodes
// to zero.
func DecodeLimitValue(raw []byte) (LimitValue, bool) {
	if len(raw) == 0 {
		return LimitValue{}, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return LimitValue{}, false
	}
	encoded, ok := probe["max"]
	if !ok {
		return LimitValue{}, false
	}
	var max int
	if err := json.Unmarshal(encoded, &max); err != nil {
		return LimitValue{}, false
	}
	return LimitValue{Max: max}, true
}

// EncodeFeatureValue renders the canonical feature blob.
func EncodeFeatureValue(included bool) []byte {
	out, _ := json.Marshal(FeatureValue{Included: included})
	return out
}

// EncodeLimitValue renders the canonical limit blob.
func EncodeLimitValue(max int) []byte {
	out, _ := json.Marshal(LimitValue{Max: max})
	return out
}
