package validation

import (
	"encoding/json"
	"fmt"
	"sort"
)

// editableFields are the descriptive claim fields a merge patch may touch.
// Everything the ledger owns (status, amount, requester, hashes) is excluded.
var editableFields = map[string]string{
	"location":      "string",
	"claimType":     "string",
	"policyNumber":  "string",
	"assignedEmail": "string",
	"documents":     "array",
}

// MetadataPatchValidator checks RFC 7386 merge patch documents for claims
type MetadataPatchValidator struct{}

// NewMetadataPatchValidator creates a new validator
func NewMetadataPatchValidator() *MetadataPatchValidator {
	return &MetadataPatchValidator{}
}

// Validate rejects unknown keys, wrong value types and null removals of required fields
func (v *MetadataPatchValidator) Validate(patch []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(patch, &doc); err != nil {
		return Invalid("patch", "must be a JSON object: %v", err)
	}
	if len(doc) == 0 {
		return Invalid("patch", "is empty")
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		kind, ok := editableFields[key]
		if !ok {
			return Invalid(key, "is not editable")
		}
		if err := checkKind(key, kind, doc[key]); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(key, kind string, raw json.RawMessage) error {
	if string(raw) == "null" {
		if key == "claimType" || key == "policyNumber" {
			return Invalid(key, "cannot be removed")
		}
		return nil
	}

	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return Invalid(key, "invalid JSON: %v", err)
	}

	switch kind {
	case "string":
		s, ok := value.(string)
		if !ok {
			return Invalid(key, "must be a string")
		}
		if (key == "claimType" || key == "policyNumber") && s == "" {
			return Invalid(key, "cannot be empty")
		}
	case "array":
		if _, ok := value.([]interface{}); !ok {
			return Invalid(key, "must be an array")
		}
	default:
		return fmt.Errorf("unknown field kind %q", kind)
	}
	return nil
}
