package graph_test

import (
	"testing"

	"graphstore/testutil"
)

// TestGraphCoreImports keeps the engine free of the integration stack: only
// the standard library and internal/reactive are imported directly, and none
// of the config, schema-loading or metrics layers are reachable.
func TestGraphCoreImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ThirdPartyImport, "graph imports only the standard library and internal packages")
	testutil.AssertNoTransitiveDependency(t, ".", testutil.PrefixForbidden(
		"github.com/prometheus",
		"github.com/spf13/viper",
		"github.com/hashicorp/hcl/v2",
		"github.com/expr-lang/expr",
		"gopkg.in/yaml.v3",
		"graphstore/pkg/config",
		"graphstore/pkg/observability",
		"graphstore/pkg/schema",
	), "graph core must not depend on integration layers")
}
