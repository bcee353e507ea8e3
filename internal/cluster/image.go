package cluster

import (
	"fmt"
	"strings"

	"github.com/playbookrun/controller/common/gerror"
)

// ResolveImage applies the step image naming convention: a name containing "/" is taken
// verbatim (it already names a registry/repository), otherwise it is prefixed with the
// configured registry and a "step-" namespace. A short name with no configured registry
// fails fast rather than launching an unresolvable Job.
func ResolveImage(name, registry string) (string, error) {
	if name == "" {
		return "", gerror.NewErrValidationFailed("step image name is required")
	}
	if strings.Contains(name, "/") {
		return name, nil
	}
	if registry == "" {
		return "", gerror.NewErrValidationFailed(fmt.Sprintf("step image %q is a short name but no registry is configured", name)).EDetail("image", name)
	}
	return strings.TrimSuffix(registry, "/") + "/step-" + name, nil
}
