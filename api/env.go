// SPDX-License-Identifier: MPL-2.0

package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Environment is the set of base URLs for one deployment of the platform.
type Environment struct {
	Name          string
	Accounts      string
	Devstack      string
	Studio        string
	Git           string
	OAuthClientID string
}

var (
	Production = Environment{
		Name:          "production",
		Accounts:      "https://accounts.imagelance.com",
		Devstack:      "https://devstack.imagelance.com/api",
		Studio:        "https://studio.imagelance.com",
		Git:           "https://git.imagelance.com",
		OAuthClientID: "963bd29c-5162-4e81-b3c7-e6b22915d68e",
	}
	Local = Environment{
		Name:          "local",
		Accounts:      "http://localhost",
		Devstack:      "http://127.0.0.1:8060/api",
		Studio:        "http://localhost:3010",
		Git:           "http://localhost:3000",
		OAuthClientID: "963b867a-f8a3-4abf-abc7-9b2cf27376eb",
	}
)

// LookupEnvironment resolves the --env and --local flags. --local wins.
func LookupEnvironment(name string, local bool) (Environment, error) {
	if local {
		return Local, nil
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "production", "client":
		return Production, nil
	case "local":
		return Local, nil
	default:
		return Environment{}, fmt.Errorf("unknown environment %q (expected production or local)", name)
	}
}

func trimPath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

func join(base, p string) string {
	base = strings.TrimRight(base, "/")
	p = trimPath(p)
	if p == "" {
		return base + "/"
	}
	return base + "/" + p
}

// AccountsURL builds an accounts service URL. API routes live under /api.
func (e Environment) AccountsURL(p string, apiRoute bool) string {
	if apiRoute {
		return join(e.Accounts+"/api", p)
	}
	return join(e.Accounts, p)
}

func (e Environment) DevstackURL(p string) string {
	return join(e.Devstack, p)
}

// StudioURL returns the studio base URL when p is empty.
func (e Environment) StudioURL(p string) string {
	if trimPath(p) == "" {
		return strings.TrimRight(e.Studio, "/")
	}
	return join(e.Studio, p)
}

// GitOrigin returns the clone URL of brand/repo with basic-auth credentials
// embedded when a username is given.
func (e Environment) GitOrigin(brand, repo, username, password string) string {
	u, err := url.Parse(e.Git)
	if err != nil {
		return join(e.Git, brand+"/"+repo+".git")
	}
	if username != "" {
		u.User = url.UserPassword(username, password)
	}
	u.Path = "/" + trimPath(brand) + "/" + trimPath(repo) + ".git"
	return u.String()
}
