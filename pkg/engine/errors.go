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

package engine

import "errors"

var (
	ErrUnknownDataset   = errors.New("dataset is not configured")
	ErrUnknownSeries    = errors.New("series has not been fetched")
	ErrInsufficientData = errors.New("no row carries the requested fields")
	ErrEmptyView        = errors.New("view name is empty")
	ErrEmptyJobID       = errors.New("job id is empty")
	ErrEmptyEntity      = errors.New("entity is empty")
)
