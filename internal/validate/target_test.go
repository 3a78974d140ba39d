package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reconnity/easm-core/internal/model"
)

func TestTarget_AcceptsAddressesCIDRAndDomains(t *testing.T) {
	valid := []string{
		"192.0.2.10",
		"2001:db8::1",
		"10.0.0.0/8",
		"example.com",
		"scan-host.internal.example.com",
	}
	for _, s := range valid {
		assert.Truef(t, Target(s), "expected %q to be a valid target", s)
	}
}

func TestTarget_RejectsEmptyAndMalformed(t *testing.T) {
	invalid := []string{
		"",
		"not a target",
		"999.999.999.999",
		"-leading-hyphen.com",
		"http://example.com",
	}
	for _, s := range invalid {
		assert.Falsef(t, Target(s), "expected %q to be rejected", s)
	}
}

func TestInferAssetType(t *testing.T) {
	assert.Equal(t, model.AssetIP, InferAssetType("192.0.2.10"))
	assert.Equal(t, model.AssetIP, InferAssetType("2001:db8::1"))
	assert.Equal(t, model.AssetDomain, InferAssetType("example.com"))
	assert.Equal(t, model.AssetUnknown, InferAssetType("10.0.0.0/8"))
}
