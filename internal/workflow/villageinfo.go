package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/qiankun25/RuralMuralGenerator/internal/domain"
)

// villageInfoSchema constrains the structured payload submitted at the
// INITIAL stage. Name and location are mandatory, the rest is optional.
const villageInfoSchema = `{
	"type": "object",
	"properties": {
		"name":        {"type": "string", "minLength": 1},
		"location":    {"type": "string", "minLength": 1},
		"industry":    {"type": "string"},
		"history":     {"type": "string"},
		"custom_info": {"type": "string"}
	},
	"required": ["name", "location"],
	"additionalProperties": false
}`

var compiledVillageSchema = jsonschema.MustCompileString("village_info.json", villageInfoSchema)

// ParseVillageInfo decodes and validates the INITIAL-stage payload.
func ParseVillageInfo(input string) (*domain.VillageInfo, error) {
	var generic any
	if err := json.Unmarshal([]byte(strings.TrimSpace(input)), &generic); err != nil {
		return nil, fmt.Errorf("village info is not JSON: %w", err)
	}
	if err := compiledVillageSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("village info failed validation: %w", err)
	}

	var info domain.VillageInfo
	if err := json.Unmarshal([]byte(input), &info); err != nil {
		return nil, fmt.Errorf("decode village info: %w", err)
	}
	return &info, nil
}
