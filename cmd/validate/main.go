package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/astcode/simvibe3d/pkg/actor"
	"github.com/astcode/simvibe3d/pkg/quest"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <data-dir>\n", os.Args[0])
		os.Exit(1)
	}

	dataDir := os.Args[1]
	validator := &DataValidator{}

	if err := validator.validateDir(dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Data files are valid!")
}

type DataValidator struct {
	errors       []string
	characterIDs map[string]bool
}

func (v *DataValidator) validateDir(dataDir string) error {
	v.errors = nil
	v.characterIDs = make(map[string]bool)

	charFiles, err := filepath.Glob(filepath.Join(dataDir, "characters", "*.json"))
	if err != nil {
		return fmt.Errorf("failed to list character files: %w", err)
	}
	if len(charFiles) == 0 {
		return fmt.Errorf("no character files found in %s", filepath.Join(dataDir, "characters"))
	}
	for _, f := range charFiles {
		v.validateCharacterFile(f)
	}

	questFiles, err := filepath.Glob(filepath.Join(dataDir, "quests", "*.json"))
	if err != nil {
		return fmt.Errorf("failed to list quest files: %w", err)
	}
	if len(questFiles) == 0 {
		return fmt.Errorf("no quest files found in %s", filepath.Join(dataDir, "quests"))
	}
	for _, f := range questFiles {
		v.validateQuestFile(f)
	}

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *DataValidator) validateCharacterFile(filename string) {
	fmt.Printf("Validating %s...\n", filename)

	id := strings.TrimSuffix(filepath.Base(filename), ".json")
	if !isValidID(id) {
		v.addError(fmt.Sprintf("character filename '%s' must be lowercase snake_case", filepath.Base(filename)))
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		v.addError(fmt.Sprintf("failed to read %s: %v", filename, err))
		return
	}

	var p actor.CharacterProfile
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&p); err != nil {
		v.addError(fmt.Sprintf("%s failed strict JSON unmarshaling: %v", filename, err))
		return
	}

	p.ID = id
	if err := p.Validate(); err != nil {
		v.addError(fmt.Sprintf("%s: %v", filename, err))
	}
	v.characterIDs[id] = true
}

func (v *DataValidator) validateQuestFile(filename string) {
	fmt.Printf("Validating %s...\n", filename)

	name := strings.TrimSuffix(filepath.Base(filename), ".json")
	if !isValidID(name) {
		v.addError(fmt.Sprintf("quest filename '%s' must be lowercase snake_case", filepath.Base(filename)))
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		v.addError(fmt.Sprintf("failed to read %s: %v", filename, err))
		return
	}

	var def quest.Definition
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&def); err != nil {
		v.addError(fmt.Sprintf("%s failed strict JSON unmarshaling: %v", filename, err))
		return
	}

	if err := def.Validate(); err != nil {
		v.addError(fmt.Sprintf("%s: %v", filename, err))
		return
	}

	v.validateIDFormat("quest ID", def.ID)
	for _, stage := range def.Stages {
		v.validateIDFormat("stage ID", stage.ID)
		for _, obj := range stage.Objectives {
			v.validateIDFormat("objective ID", obj.ID)
			if !v.characterIDs[obj.CharacterID] {
				v.addError(fmt.Sprintf("%s: objective %s references unknown character '%s'", filename, obj.ID, obj.CharacterID))
			}
		}
	}
}

func (v *DataValidator) validateIDFormat(fieldName, id string) {
	if id == "" {
		return
	}
	if !isValidID(id) {
		v.addError(fmt.Sprintf("%s '%s' should be lowercase snake_case", fieldName, id))
	}
}

func (v *DataValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var validIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

func isValidID(id string) bool {
	return validIDRegex.MatchString(id)
}
