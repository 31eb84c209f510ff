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

// Package stitch turns flat (timestamp, field, value, tags) samples into
// time-keyed rows with one column per field.
package stitch

import (
	"sort"
	"strings"

	"github.com/carverauto/clusterwatch/pkg/models"
)

// EntityFunc picks the entity that qualifies a sample's field name, e.g. the
// collection or replica-set member a point belongs to. Returning false leaves
// the field unqualified.
type EntityFunc func(tags map[string]string) (string, bool)

// ByTag qualifies fields with the value of the named tag.
func ByTag(tag string) EntityFunc {
	if tag == "" {
		return nil
	}

	return func(tags map[string]string) (string, bool) {
		v, ok := tags[tag]
		if !ok || v == "" {
			return "", false
		}

		return v, true
	}
}

var entityReplacer = strings.NewReplacer(
	".", "_",
	":", "_",
	"/", "_",
	" ", "_",
	"\t", "_",
)

// SanitizeEntity replaces characters that are unsafe in column keys.
func SanitizeEntity(entity string) string {
	return entityReplacer.Replace(entity)
}

// QualifiedName returns the column name for field under entity.
func QualifiedName(entity, field string) string {
	if entity == "" {
		return field
	}

	return SanitizeEntity(entity) + "_" + field
}

// Stitch groups samples by timestamp and returns rows sorted ascending by
// time. Samples colliding on timestamp and qualified name resolve to the one
// that appears last in the input. entity may be nil.
func Stitch(samples []models.Sample, entity EntityFunc) []models.StitchedRow {
	if len(samples) == 0 {
		return []models.StitchedRow{}
	}

	byTime := make(map[int64]*models.StitchedRow)

	for i := range samples {
		s := &samples[i]
		if s.Field == "" {
			continue
		}

		name := s.Field

		if entity != nil {
			if e, ok := entity(s.Tags); ok {
				name = QualifiedName(e, s.Field)
			}
		}

		key := s.Timestamp.UnixNano()

		row, ok := byTime[key]
		if !ok {
			row = &models.StitchedRow{
				Time:   s.Timestamp.UTC(),
				Values: make(map[string]float64),
			}
			byTime[key] = row
		}

		row.Values[name] = s.Value
	}

	rows := make([]models.StitchedRow, 0, len(byTime))
	for _, row := range byTime {
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Time.Before(rows[j].Time)
	})

	return rows
}
