package drm

import "github.com/google/uuid"

// SchemeInitData is the scheme-specific initialization blob extracted from
// container metadata, paired with the MIME type of the carrying track.
type SchemeInitData struct {
	MimeType string
	Data     []byte
}

// InitData maps scheme identifiers to their init data as carried by the
// container. The session manager selects exactly one entry at open time.
type InitData map[uuid.UUID]SchemeInitData

// Get returns the init data for schemeID and whether the container carries
// any for it.
func (d InitData) Get(schemeID uuid.UUID) (SchemeInitData, bool) {
	data, ok := d[schemeID]
	return data, ok
}
