// Package samples bundles example solution manifests.
package samples

import (
	_ "embed"
	"fmt"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/schema"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

//go:embed onboarding.json
var onboardingJSON []byte

// OnboardingJSON returns the raw employee onboarding manifest.
func OnboardingJSON() []byte {
	out := make([]byte, len(onboardingJSON))
	copy(out, onboardingJSON)
	return out
}

// Onboarding returns the employee onboarding manifest, validated.
func Onboarding() models.Manifest {
	res := schema.Validate(onboardingJSON)
	if !res.OK {
		panic(fmt.Sprintf("samples: onboarding manifest is invalid: %v", res.Issues))
	}
	return *res.Manifest
}
