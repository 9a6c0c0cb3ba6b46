package panorama

import (
	"testing"

	"github.com/jarcoal/httpmock"
	"go.uber.org/goleak"
)

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func verifyNoLeaks(t *testing.T) {
	t.Helper()
	goleak.VerifyNone(t)
}

func strPtr(s string) *string { return &s }
