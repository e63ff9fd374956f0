package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"egodrive/cruise/internal/config"
)

// TopicDoc describes one bus subject the controller subscribes to or
// publishes on. The structure is deliberately generic so that future clients
// can attach extra metadata without breaking the API.
type TopicDoc struct {
	Subject     string `json:"subject"`
	Direction   string `json:"direction"`
	Payload     string `json:"payload"`
	Description string `json:"description"`
}

// topicDocs hosts the canonical payload reference on the controller itself so
// simulators and dashboards can query it from automated tests or tooling and
// keep their publishers in sync.
func topicDocs(subjects config.Subjects) []TopicDoc {
	return []TopicDoc{
		{
			Subject:     subjects.Clock,
			Direction:   "ingress",
			Payload:     `decimal seconds, or {"time": f}`,
			Description: "Monotonic simulation or vehicle clock driving timestep computation.",
		},
		{
			Subject:     subjects.Velocity,
			Direction:   "ingress",
			Payload:     `decimal m/s, or {"velocity": f}`,
			Description: "Measured longitudinal speed; every arrival triggers one controller step.",
		},
		{
			Subject:     subjects.TargetSpeed,
			Direction:   "ingress",
			Payload:     `decimal m/s, or {"speed": f}`,
			Description: "Operator-requested cruise speed.",
		},
		{
			Subject:     subjects.Engage,
			Direction:   "ingress+egress",
			Payload:     `"0" or "1", or {"engaged": u8}`,
			Description: "Cruise engage flag; the controller also publishes its own transitions here.",
		},
		{
			Subject:     subjects.Lidar,
			Direction:   "ingress",
			Payload:     `{channel_count, horizontal_angle, is_empty, len, detections:[{intensity, point:{x,y,z}}]}`,
			Description: "Forward-facing point-cloud frames feeding the obstacle overlay.",
		},
		{
			Subject:     subjects.Control,
			Direction:   "ingress",
			Payload:     `{"throttle": f, "steer": f, "brake": f}`,
			Description: "Driver pedal and steering inputs; brake above 10% suspends cruise.",
		},
		{
			Subject:     subjects.Actuation,
			Direction:   "egress",
			Payload:     "decimal m/s²",
			Description: "Commanded longitudinal acceleration, published on every step.",
		},
	}
}

// registerTopicDocEndpoints serves the subject reference as JSON so it can be
// reused by other tooling without additional parsing work.
func registerTopicDocEndpoints(mux *http.ServeMux, subjects config.Subjects) {
	mux.HandleFunc("/api/topics", func(w http.ResponseWriter, r *http.Request) {
		docs := topicDocs(subjects)
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].Direction == docs[j].Direction {
				return strings.Compare(docs[i].Subject, docs[j].Subject) < 0
			}
			return strings.Compare(docs[i].Direction, docs[j].Direction) < 0
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(docs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
