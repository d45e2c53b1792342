package blob

import (
	"testing"

	"rd3/testutil"
)

// Other packages depend on blob.Store, never on a driver package.
func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	testutil.AssertOnlyWrapperImports(t, "rd3/...", "rd3/internal/infra/blob", "rd3/internal/blob")
}
