package scanoptions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconnity/easm-core/internal/model"
)

func TestValidate_EmptyRawDefaultsToEmptyObject(t *testing.T) {
	canonical, timeout, err := Validate(model.ScannerPortFast, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, timeout)
	assert.JSONEq(t, `{"ports":""}`, string(canonical))
}

func TestValidate_PortFastAcceptsKnownFields(t *testing.T) {
	canonical, timeout, err := Validate(model.ScannerPortFast, []byte(`{"ports":"1-1000","rate_limit":500,"timeout":120}`))
	require.NoError(t, err)
	assert.Equal(t, 120, timeout)
	assert.JSONEq(t, `{"ports":"1-1000","rate_limit":500,"timeout":120}`, string(canonical))
}

func TestValidate_RejectsUnknownKey(t *testing.T) {
	_, _, err := Validate(model.ScannerPortFast, []byte(`{"ports":"1-1000","bogus":true}`))
	require.Error(t, err)
}

func TestValidate_PortDeepAcceptsTimingTemplate(t *testing.T) {
	canonical, _, err := Validate(model.ScannerPortDeep, []byte(`{"ports":"1-65535","timing_template":"4"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ports":"1-65535","timing_template":"4"}`, string(canonical))
}

func TestValidate_VulnAcceptsTemplatesAndSeverity(t *testing.T) {
	canonical, _, err := Validate(model.ScannerVuln, []byte(`{"templates":["cves","exposures"],"severity_min":"medium"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"templates":["cves","exposures"],"severity_min":"medium"}`, string(canonical))
}

func TestValidate_UnsupportedScannerErrors(t *testing.T) {
	_, _, err := Validate(model.Scanner("not-a-scanner"), []byte(`{}`))
	require.Error(t, err)
}
