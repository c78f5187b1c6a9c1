package schema_test

import (
	"testing"

	"graphstore/testutil"
)

func TestSchemaLoaderStaysDeclarative(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, ".", testutil.PrefixForbidden(
		"github.com/prometheus",
		"github.com/spf13/viper",
		"graphstore/pkg/config",
		"graphstore/pkg/observability",
		"graphstore/pkg/bootstrap",
	), "schema files describe models only; runtime wiring belongs to bootstrap")
}
