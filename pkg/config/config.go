/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads and validates clusterwatch's JSON configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	errInvalidDuration = errors.New("invalid duration")
	errMissingField    = errors.New("missing required field")
	errInvalidValue    = errors.New("invalid configuration value")
	errTrailingData    = errors.New("unexpected data after the configuration object")
)

// Validator is implemented by configurations that check themselves and
// fill in defaults.
type Validator interface {
	Validate() error
}

// Decode reads one JSON document from r into dst. Unknown keys are rejected
// so a misspelled option fails loudly instead of silently taking its default.
func Decode(r io.Reader, dst interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}

	if dec.More() {
		return errTrailingData
	}

	return nil
}

// LoadFile decodes the JSON file at path into dst.
func LoadFile(path string, dst interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}
	defer f.Close()

	if err := Decode(f, dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	return nil
}

// ValidateConfig validates cfg if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	if v, ok := cfg.(Validator); ok {
		return v.Validate()
	}

	return nil
}

// LoadAndValidate loads the file at path into cfg and validates it.
func LoadAndValidate(path string, cfg interface{}) error {
	if err := LoadFile(path, cfg); err != nil {
		return err
	}

	return ValidateConfig(cfg)
}
