package domain

import (
	"encoding/json"
	"slices"
	"time"
)

// Resources the dashboard manages. Payloads are free-form JSON objects.
var Resources = []string{
	"projects",
	"sprints",
	"modules",
	"tasks",
	"timesheets",
	"notifications",
	"change-logs",
}

func IsResource(name string) bool {
	return slices.Contains(Resources, name)
}

// Record is one stored resource item.
type Record struct {
	ID        string
	Resource  string
	Data      map[string]any
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarshalJSON flattens the record: the payload fields plus id and timestamps.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Data)+4)
	for k, v := range r.Data {
		out[k] = v
	}
	out["id"] = r.ID
	out["created_by"] = r.CreatedBy
	out["created_at"] = r.CreatedAt.UTC().Format(time.RFC3339)
	out["updated_at"] = r.UpdatedAt.UTC().Format(time.RFC3339)
	return json.Marshal(out)
}
