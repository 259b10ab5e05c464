// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// validate is the validator for JSON:API envelopes and attribute sets.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("jsonapiid", validateResourceID)
}

// validateResourceID accepts JSON:API ids that are positive integers in
// string form, which is how the registry encodes every primary key.
func validateResourceID(fl validator.FieldLevel) bool {
	id, err := strconv.Atoi(fl.Field().String())
	return err == nil && id > 0
}

// =============================================================================
// JSON:API Envelopes
// =============================================================================

// resourceIdentifier is a {id, type} linkage.
type resourceIdentifier struct {
	ID   string `json:"id" validate:"jsonapiid"`
	Type string `json:"type" validate:"required"`
}

// relationship holds to-one linkage only; to-many linkage is not needed.
type relationship struct {
	Data *resourceIdentifier `json:"data"`
}

// UnmarshalJSON tolerates to-many linkage by ignoring it.
func (r *relationship) UnmarshalJSON(data []byte) error {
	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(raw.Data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		r.Data = nil
		return nil
	}
	var id resourceIdentifier
	if err := json.Unmarshal(trimmed, &id); err != nil {
		return err
	}
	r.Data = &id
	return nil
}

// resourceObject is one element of a JSON:API "data" or "included" member.
type resourceObject struct {
	ID            string                  `json:"id" validate:"jsonapiid"`
	Type          string                  `json:"type" validate:"required"`
	Attributes    json.RawMessage         `json:"attributes" validate:"required"`
	Relationships map[string]relationship `json:"relationships,omitempty"`
}

type documentLinks struct {
	Next *string `json:"next"`
}

type singleDocument struct {
	Data     *resourceObject  `json:"data" validate:"required"`
	Included []resourceObject `json:"included,omitempty" validate:"omitempty,dive"`
}

type collectionDocument struct {
	Data     []resourceObject `json:"data" validate:"required,dive"`
	Included []resourceObject `json:"included,omitempty" validate:"omitempty,dive"`
	Links    *documentLinks   `json:"links,omitempty"`
}

// relatedID returns the integer id linked under name, if any.
func (o resourceObject) relatedID(name string) (int, bool) {
	rel, ok := o.Relationships[name]
	if !ok || rel.Data == nil {
		return 0, false
	}
	id, err := strconv.Atoi(rel.Data.ID)
	if err != nil {
		return 0, false
	}
	return id, true
}

// =============================================================================
// Decoding
// =============================================================================

func decodeSingle(resource string, body []byte) (resourceObject, error) {
	var doc singleDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return resourceObject{}, newValidationError(resource, err)
	}
	if err := validate.Struct(doc); err != nil {
		return resourceObject{}, newValidationError(resource, err)
	}
	if err := checkType(resource, *doc.Data); err != nil {
		return resourceObject{}, err
	}
	return *doc.Data, nil
}

func decodeCollection(resource string, body []byte) (collectionDocument, error) {
	var doc collectionDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return collectionDocument{}, newValidationError(resource, err)
	}
	if err := validate.Struct(doc); err != nil {
		return collectionDocument{}, newValidationError(resource, err)
	}
	for _, obj := range doc.Data {
		if err := checkType(resource, obj); err != nil {
			return collectionDocument{}, err
		}
	}
	return doc, nil
}

func checkType(resource string, obj resourceObject) error {
	if obj.Type != resource {
		return newValidationError(resource, fmt.Errorf("resource %s has type %q", obj.ID, obj.Type))
	}
	return nil
}

// decodeAttributes unmarshals and validates the attribute set of obj and
// returns its integer id.
func decodeAttributes[A any](resource string, obj resourceObject, attrs *A) (int, error) {
	id, err := strconv.Atoi(obj.ID)
	if err != nil {
		return 0, newValidationError(resource, fmt.Errorf("id %q: %w", obj.ID, err))
	}
	if err := json.Unmarshal(obj.Attributes, attrs); err != nil {
		return 0, newValidationError(resource, fmt.Errorf("resource %d attributes: %w", id, err))
	}
	if err := validate.Struct(attrs); err != nil {
		return 0, newValidationError(resource, fmt.Errorf("resource %d: %w", id, err))
	}
	return id, nil
}
