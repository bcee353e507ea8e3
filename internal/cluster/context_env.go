package cluster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/structs"

	"github.com/playbookrun/controller/internal/models"
)

// ContextEnv flattens a resolved run Context into the env vars a step's container sees when
// the step definition doesn't declare explicit overrides. Each leaf becomes
// PLAYBOOK_CONTEXT_<PATH>, where PATH is the leaf's path segments upper-cased and joined by
// underscores, using the `structs` tags models.Context declares rather than Go field names.
func ContextEnv(ctx models.Context) map[string]string {
	out := map[string]string{}
	flattenInto(out, "PLAYBOOK_CONTEXT", structs.Map(ctx))
	return out
}

func flattenInto(out map[string]string, prefix string, v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		for _, k := range sortedKeys(val) {
			flattenInto(out, prefix+"_"+strings.ToUpper(k), val[k])
		}
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[prefix+"_"+strings.ToUpper(k)] = val[k]
		}
	default:
		if structs.IsStruct(v) {
			flattenInto(out, prefix, structs.Map(v))
			return
		}
		out[prefix] = fmt.Sprintf("%v", val)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
