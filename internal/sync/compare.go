package sync

import (
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/docsync/internal/docstore"
)

// overlay returns a copy of base with every key of top merged in, objects
// recursively.
func overlay(base, top map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		sub, ok := v.(map[string]any)
		cur, curOK := out[k].(map[string]any)
		if ok && curOK {
			out[k] = overlay(cur, sub)
			continue
		}
		out[k] = v
	}
	return out
}

// sameJSON compares two values by their JSON encoding; map keys are sorted
// by the encoder.
func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

// covers reports whether the live mapping of a document type already
// contains everything in desired, so putting desired would change nothing.
func covers(live, desired map[string]any) bool {
	if live == nil {
		return false
	}
	if dynamicOf(live) != dynamicOf(desired) {
		return false
	}
	liveProps, _ := live["properties"].(map[string]any)
	desiredProps, _ := desired["properties"].(map[string]any)
	return propertiesCover(liveProps, desiredProps)
}

func dynamicOf(m map[string]any) string {
	v, ok := m["dynamic"]
	if !ok || v == nil || v == "" {
		return "true"
	}
	return fmt.Sprint(docstore.Stringify(v))
}

func propertiesCover(live, desired map[string]any) bool {
	for name, dv := range desired {
		want, ok := dv.(map[string]any)
		if !ok {
			return false
		}
		have, ok := live[name].(map[string]any)
		if !ok {
			return false
		}
		if !propertyCovers(have, want) {
			return false
		}
	}
	return true
}

func propertyCovers(have, want map[string]any) bool {
	for attr, wv := range want {
		switch attr {
		case "properties", "fields":
			wantSub, _ := wv.(map[string]any)
			haveSub, _ := have[attr].(map[string]any)
			if !propertiesCover(haveSub, wantSub) {
				return false
			}
		case "type":
			// Object types are implied by "properties" in reported mappings.
			if wv == "object" && have["type"] == nil {
				continue
			}
			if !sameJSON(docstore.Stringify(have["type"]), docstore.Stringify(wv)) {
				return false
			}
		default:
			if !sameJSON(docstore.Stringify(have[attr]), docstore.Stringify(wv)) {
				return false
			}
		}
	}
	return true
}
