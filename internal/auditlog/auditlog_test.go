// Package auditlog provides structured logging capabilities for the pipeline tool.
package auditlog

import "testing"

// Basic package initialization test to verify the package can be imported
func TestPackageInitialization(t *testing.T) {
	// This test simply verifies that the package can be compiled and initialized.
	// Actual functionality tests will be added in subsequent implementation tasks.
}
