package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultSubjects is the catalog used when neither an inline list nor a
// readable subjects file is configured.
var DefaultSubjects = []Subject{
	{ID: "math", Name: "Математика"},
	{ID: "physics", Name: "Физика"},
	{ID: "chemistry", Name: "Химия"},
	{ID: "biology", Name: "Биология"},
	{ID: "history", Name: "История"},
	{ID: "literature", Name: "Литература"},
	{ID: "english", Name: "Английский язык"},
	{ID: "cs", Name: "Информатика"},
	{ID: "geography", Name: "География"},
}

// ReadSubjectsFile reads a JSON array of {"id","name"} objects.
func ReadSubjectsFile(path string) ([]Subject, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []Subject
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("subjects file %s: %w", path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("subjects file %s: empty catalog", path)
	}
	return out, nil
}
