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

package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the ordered lifecycle of a long-running job.
type JobStatus int

const (
	JobStatusUnknown JobStatus = iota
	JobStatusPending
	JobStatusRunning
	JobStatusCompleted
	JobStatusFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "PENDING"
	case JobStatusRunning:
		return "RUNNING"
	case JobStatusCompleted:
		return "COMPLETED"
	case JobStatusFailed:
		return "FAILED"
	case JobStatusUnknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are accepted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the names produced by MarshalJSON. Anything else
// decodes to JobStatusUnknown.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	*s = JobStatusUnknown

	for _, st := range []JobStatus{JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed} {
		if st.String() == name {
			*s = st
		}
	}

	return nil
}

// JobState is the reconciled read model for one job.
type JobState struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Status    JobStatus `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobTransition is published whenever a job's resolved status changes.
type JobTransition struct {
	JobID  string    `json:"job_id"`
	From   JobStatus `json:"from"`
	To     JobStatus `json:"to"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// JobSummary is one entry of the job list as reported upstream.
type JobSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
}

// ProcessLog is one poll of a job's process log. FinalStatus comes from the
// log metadata and is empty when absent.
type ProcessLog struct {
	Status        string   `json:"status"`
	Logs          []string `json:"logs"`
	FinalStatus   string   `json:"final_status,omitempty"`
	ProcessStatus string   `json:"process_status,omitempty"`
}
