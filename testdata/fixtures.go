// Package testdata embeds recorded hand poses for tests.
package testdata

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/srujkamble02/ishara/internal/classifier"
	"github.com/srujkamble02/ishara/internal/detector"
)

//go:embed poses/*.json
var posesFS embed.FS

// PoseFixture is one recorded pose. Label is empty for poses that do not
// show a letter.
type PoseFixture struct {
	Name  string            `json:"-"`
	Label string            `json:"label,omitempty"`
	Pose  detector.HandPose `json:"pose"`
}

// LoadPose loads a pose fixture by name, without the .json extension.
func LoadPose(name string) (PoseFixture, error) {
	data, err := posesFS.ReadFile(path.Join("poses", name+".json"))
	if err != nil {
		return PoseFixture{}, fmt.Errorf("load pose %s: %w", name, err)
	}

	var f PoseFixture
	if err := json.Unmarshal(data, &f); err != nil {
		return PoseFixture{}, fmt.Errorf("decode pose %s: %w", name, err)
	}
	f.Name = name
	return f, nil
}

// LoadLabeled loads every fixture that shows a letter, ordered by name.
func LoadLabeled() ([]PoseFixture, error) {
	entries, err := posesFS.ReadDir("poses")
	if err != nil {
		return nil, err
	}

	var fixtures []PoseFixture
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".json")
		f, err := LoadPose(name)
		if err != nil {
			return nil, err
		}
		if f.Label != "" {
			fixtures = append(fixtures, f)
		}
	}
	sort.Slice(fixtures, func(i, j int) bool { return fixtures[i].Name < fixtures[j].Name })
	return fixtures, nil
}

// TemplateArtifact builds a templates classifier artifact from the named
// fixtures, one template per fixture.
func TemplateArtifact(tolerance float64, names ...string) ([]byte, error) {
	a := classifier.Artifact{
		Kind:   classifier.KindTemplates,
		Labels: classifier.Labels[:],
	}
	for _, name := range names {
		f, err := LoadPose(name)
		if err != nil {
			return nil, err
		}
		t, err := classifier.TemplateFromPose(f.Label, &f.Pose, tolerance)
		if err != nil {
			return nil, fmt.Errorf("template from %s: %w", name, err)
		}
		a.Templates = append(a.Templates, t)
	}
	return json.Marshal(a)
}
