package spantree

// MergePatch applies patch to target per RFC 7396 (JSON Merge Patch) and
// returns the result. A map patch merges recursively, removing keys whose
// patch value is nil; any other patch replaces target wholesale. A non-map
// target is treated as an empty map when the patch is a map. target is not
// mutated.
func MergePatch(target, patch any) any {
	patchMap, ok := patch.(map[string]any)
	if !ok {
		return patch
	}
	targetMap, ok := target.(map[string]any)
	if !ok {
		targetMap = nil
	}
	merged := make(map[string]any, len(targetMap)+len(patchMap))
	for k, v := range targetMap {
		merged[k] = v
	}
	for k, v := range patchMap {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = MergePatch(merged[k], v)
	}
	return merged
}

// MergePatchMap is MergePatch restricted to map patches, the shape every
// span data update takes.
func MergePatchMap(target, patch map[string]any) map[string]any {
	return MergePatch(target, patch).(map[string]any)
}
