//go:build property
// +build property

package canonicalize

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: the content hash of a record depends only on its logical content,
// never on assembly order.
func TestHashOrderInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("hash is invariant to insertion order", prop.ForAll(
		func(keys []string, values []string) bool {
			forward := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				forward[keys[i]] = values[i]
			}
			backward := make(map[string]any)
			for i := min(len(keys), len(values)) - 1; i >= 0; i-- {
				backward[keys[i]] = values[i]
			}

			h1, err1 := Hash(forward)
			h2, err2 := Hash(backward)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return h1 == h2
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("hashing is deterministic across calls", prop.ForAll(
		func(key string, value string) bool {
			rec := map[string]any{key: value}
			h1, err1 := Hash(rec)
			h2, err2 := Hash(rec)
			return err1 == nil && err2 == nil && h1 == h2
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
