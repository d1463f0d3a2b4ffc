package drm

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Well-known content-protection scheme identifiers.
var (
	WidevineID  = uuid.MustParse("edef8ba9-79d6-4ace-a3c8-27dcd51d21ed")
	PlayReadyID = uuid.MustParse("9a04f079-9840-4286-ab92-e65be0885f95")
	ClearKeyID  = uuid.MustParse("e2719d58-a985-b3c9-781a-b030af78d30e")
)

// PlayReadyCustomDataKey is the optional key-request parameter PlayReady
// servers read vendor custom data from.
const PlayReadyCustomDataKey = "PRCustomData"

var schemeNames = map[uuid.UUID]string{
	WidevineID:  "widevine",
	PlayReadyID: "playready",
	ClearKeyID:  "clearkey",
}

// SchemeName returns the canonical lowercase name for a known scheme, or the
// UUID string for unknown ones.
func SchemeName(schemeID uuid.UUID) string {
	if name, ok := schemeNames[schemeID]; ok {
		return name
	}
	return schemeID.String()
}

// SchemeByName resolves a canonical scheme name back to its identifier.
func SchemeByName(name string) (uuid.UUID, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	for id, known := range schemeNames {
		if known == trimmed {
			return id, nil
		}
	}
	if id, err := uuid.Parse(trimmed); err == nil {
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("unknown protection scheme %q", name)
}
