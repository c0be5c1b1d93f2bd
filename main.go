// SPDX-License-Identifier: MPL-2.0

package main

import "lance/cli"

// Set with -ldflags "-X main.version=... -X main.sentryDSN=... -X main.clientSecret=...".
var (
	version      = "dev"
	sentryDSN    = ""
	clientSecret = ""
)

func main() {
	cli.Main(cli.Build{
		Name:         "lance",
		Version:      version,
		SentryDSN:    sentryDSN,
		ClientSecret: clientSecret,
	})
}
