// Package pathops reads and rewrites values inside JSON-shaped documents.
//
// A document is any tree of map[string]any, []any and scalar leaves, as
// produced by encoding/json or gopkg.in/yaml.v3. Paths use dot notation:
// "items.0.name" addresses the "name" key of the first element of the
// "items" list.
//
// Writes never modify their input. Set and Delete copy only the maps and
// slices on the path to the changed value and share everything else, so
// the previous document stays valid as an old state.
package pathops
