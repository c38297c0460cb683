// Package voices holds the approved voice set, the named presets, the emotion
// table and the dialogue casting pool.
package voices

import (
	"sort"
	"strings"
)

const DefaultVoiceID = "bm_george"

type Gender string

const (
	Male   Gender = "male"
	Female Gender = "female"
)

type Voice struct {
	ID     string `json:"voice_id"`
	Name   string `json:"name"`
	Gender Gender `json:"gender"`
	Accent string `json:"accent"`
}

var approved = []Voice{
	{ID: "af_heart", Name: "Heart", Gender: Female, Accent: "american"},
	{ID: "af_bella", Name: "Bella", Gender: Female, Accent: "american"},
	{ID: "af_river", Name: "River", Gender: Female, Accent: "american"},
	{ID: "af_sarah", Name: "Sarah", Gender: Female, Accent: "american"},
	{ID: "af_sky", Name: "Sky", Gender: Female, Accent: "american"},
	{ID: "af_nicole", Name: "Nicole", Gender: Female, Accent: "american"},
	{ID: "am_adam", Name: "Adam", Gender: Male, Accent: "american"},
	{ID: "am_michael", Name: "Michael", Gender: Male, Accent: "american"},
	{ID: "am_eric", Name: "Eric", Gender: Male, Accent: "american"},
	{ID: "am_liam", Name: "Liam", Gender: Male, Accent: "american"},
	{ID: "bf_emma", Name: "Emma", Gender: Female, Accent: "british"},
	{ID: "bf_isabella", Name: "Isabella", Gender: Female, Accent: "british"},
	{ID: "bm_george", Name: "George", Gender: Male, Accent: "british"},
	{ID: "bm_lewis", Name: "Lewis", Gender: Male, Accent: "british"},
	{ID: "bm_daniel", Name: "Daniel", Gender: Male, Accent: "british"},
}

var approvedByID = func() map[string]Voice {
	m := make(map[string]Voice, len(approved))
	for _, v := range approved {
		m[v.ID] = v
	}
	return m
}()

// Presets map friendly names to approved voice IDs.
var presets = map[string]string{
	"narrator":    "bm_george",
	"announcer":   "am_michael",
	"storyteller": "bf_emma",
	"friendly":    "af_heart",
	"whisper":     "af_nicole",
	"newsreader":  "bm_lewis",
}

func Approved() []Voice {
	out := make([]Voice, len(approved))
	copy(out, approved)
	return out
}

func IsApproved(id string) bool {
	_, ok := approvedByID[id]
	return ok
}

func Lookup(id string) (Voice, bool) {
	v, ok := approvedByID[id]
	return v, ok
}

// Presets returns preset names sorted alphabetically with their voice IDs.
func Presets() map[string]string {
	out := make(map[string]string, len(presets))
	for k, v := range presets {
		out[k] = v
	}
	return out
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for k := range presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a voice ID or preset name, case-insensitively, to an approved voice ID.
func Resolve(nameOrID string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(nameOrID))
	if key == "" {
		return "", false
	}
	if _, ok := approvedByID[key]; ok {
		return key, true
	}
	if id, ok := presets[key]; ok {
		return id, true
	}
	return "", false
}
