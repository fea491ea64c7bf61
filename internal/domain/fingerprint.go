package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint computes a deterministic hash over every semantic field of the
// spec. Two specs are semantically equal iff their fingerprints match, which
// is what the reconciler uses to detect configuration drift.
//
// The reserved config-hash label is excluded so that a container created from
// this spec can carry the fingerprint as a label without changing it.
func (s *ServiceSpec) Fingerprint() string {
	shadow := *s

	if _, ok := shadow.Labels[LabelConfigHash]; ok {
		labels := make(map[string]string, len(shadow.Labels)-1)
		for k, v := range shadow.Labels {
			if k != LabelConfigHash {
				labels[k] = v
			}
		}
		shadow.Labels = labels
	}

	// encoding/json sorts map keys, so the encoding is canonical for a given
	// set of field values.
	raw, err := json.Marshal(shadow)
	if err != nil {
		// ServiceSpec contains only marshalable types; this cannot happen.
		panic("fingerprint: " + err.Error())
	}

	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
