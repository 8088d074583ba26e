// Command deskctl runs the manifest pipeline over local manifest files.
//
// Usage:
//
//	deskctl validate manifest.json
//	deskctl preflight manifest.yaml --strict
//	deskctl plan manifest.json --previous old.json
//	deskctl diff old.json new.json --detect-changes
//	deskctl seed manifest.json --records 10 --output yaml
//	deskctl run manifest.json --workflow wf-onboarding --set department=Engineering
//	deskctl export manifest.yaml
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exit *exitError
		if !errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
