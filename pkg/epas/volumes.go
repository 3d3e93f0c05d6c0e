package epas

import "sort"

// VolumeInfo describes one volume of the EPAS corpus.
type VolumeInfo struct {
	ID           string
	Title        string
	DocumentType string
}

// Volumes is the catalog of the three EPAS volumes.
var Volumes = map[string]VolumeInfo{
	"I": {
		ID:           "I",
		Title:        "Easy Access Rules for Standardisation (Regulations)",
		DocumentType: "regulation",
	},
	"II": {
		ID:           "II",
		Title:        "European Plan for Aviation Safety - Actions",
		DocumentType: "action",
	},
	"III": {
		ID:           "III",
		Title:        "European Plan for Aviation Safety - Safety Risk Portfolio",
		DocumentType: "risk",
	},
}

// LookupVolume returns the catalog entry for id.
func LookupVolume(id string) (VolumeInfo, bool) {
	v, ok := Volumes[id]
	return v, ok
}

// VolumeIDs returns the catalog ids in a stable order.
func VolumeIDs() []string {
	ids := make([]string, 0, len(Volumes))
	for id := range Volumes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
	return ids
}
