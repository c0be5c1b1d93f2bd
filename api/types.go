// SPDX-License-Identifier: MPL-2.0

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"lance/config"
)

// ID is a server identifier that may arrive as a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type User struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	GitUsername *string `json:"git_username"`
	GitPassword *string `json:"git_password"`
}

func (u User) Account() config.Account {
	account := config.Account{ID: u.ID, Name: u.Name, Email: u.Email}
	if u.GitUsername != nil {
		account.Username = *u.GitUsername
	}
	if u.GitPassword != nil {
		account.Password = *u.GitPassword
	}
	return account
}

type Org struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_url"`
}

// Sync is a subscription of the current user to one template repository.
type Sync struct {
	ID           ID     `json:"id"`
	Organization string `json:"organization"`
	Repo         string `json:"repo"`
	UserID       int64  `json:"userId"`
}

type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
	Description   string `json:"description"`
}

// OutputCategory derives the category from the repository name, which has
// the form <brand>-<name>-<category>[-...].
func OutputCategory(repo string) (string, error) {
	parts := strings.Split(repo, "-")
	if len(parts) < 3 || parts[2] == "" {
		return "", fmt.Errorf("cannot derive output category from repository name %q", repo)
	}
	return parts[2], nil
}

// Choice is a labelled value as offered by the server for pickers.
type Choice struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Value string `json:"value"`
}

func (c Choice) Title() string {
	switch {
	case c.Label != "":
		return c.Label
	case c.Name != "":
		return c.Name
	default:
		return c.Value
	}
}

type Bundle struct {
	ID     ID     `json:"id"`
	Branch string `json:"branch"`
}

type Resize struct {
	ID    ID     `json:"id"`
	Label string `json:"label"`
}

type CreateRepositoryRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Mode           string   `json:"mode"`
	OutputCategory string   `json:"outputCategory,omitempty"`
	Template       string   `json:"template,omitempty"`
	Tags           []string `json:"tags"`
}

type ValidationEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type ValidationResult struct {
	IsValid bool              `json:"isValid"`
	Log     []ValidationEntry `json:"log"`
}

// ByLevel returns the log messages of one level in order.
func (r ValidationResult) ByLevel(level string) []string {
	var out []string
	for _, entry := range r.Log {
		if strings.EqualFold(entry.Level, level) {
			out = append(out, entry.Message)
		}
	}
	return out
}

type FileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}
