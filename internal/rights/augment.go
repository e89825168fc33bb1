package rights

import "strings"

// AllowsDelete reports whether a collection's own D/d opt-in property
// permits deleting it, independent of the backend policy's verdict
// (spec.md §4.3: "Additional per-collection opt-ins... augment the
// backend decision"). leaf selects which case letter applies.
func AllowsDelete(collectionOpts string, leaf bool) bool {
	if leaf {
		return strings.ContainsRune(collectionOpts, OptDeleteLeaf)
	}
	return strings.ContainsRune(collectionOpts, OptDeleteNonLeaf)
}

// AllowsOverwrite reports whether a collection's own O/o opt-in property
// permits a PUT that overwrites an existing item/collection.
func AllowsOverwrite(collectionOpts string, leaf bool) bool {
	if leaf {
		return strings.ContainsRune(collectionOpts, OptOverwriteLeaf)
	}
	return strings.ContainsRune(collectionOpts, OptOverwriteNonLeaf)
}
