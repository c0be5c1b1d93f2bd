package core

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePrintsWarningsBeforeErrors(t *testing.T) {
	var configBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/public/bundle-validator/config", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&configBody))
		writeJSON(w, `{"isValid":false,"log":[{"level":"error","message":"missing size"},{"level":"warning","message":"unused key"}]}`)
	})
	mux.HandleFunc("/api/public/bundle-validator/schema", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"isValid":true,"log":[]}`)
	})
	f := newFixture(t, mux)
	dir := f.repo(t, "acme", "acme-spring-html-1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{\n  // sizes\n  \"width\": 300,\n}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.json"), []byte(`{"properties":{}}`), 0o644))

	err := f.app.Validate(context.Background(), ValidateOptions{})
	assert.ErrorIs(t, err, ErrInvalidTemplates)

	assert.Equal(t, "html", configBody["outputCategory"])
	assert.Equal(t, map[string]any{"width": float64(300)}, configBody["config"])

	out := f.out.String()
	assert.Contains(t, out, "Checking config of acme/acme-spring-html-1")
	assert.Contains(t, out, "Checking schema of acme/acme-spring-html-1")
	assert.Less(t, strings.Index(out, "unused key"), strings.Index(out, "missing size"))
	assert.Contains(t, out, "Done.")
}

func TestValidateWithoutOutputCategory(t *testing.T) {
	var configBody map[string]any
	var schemaChecked atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/public/bundle-validator/config", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&configBody))
		writeJSON(w, `{"isValid":true,"log":[]}`)
	})
	mux.HandleFunc("/api/public/bundle-validator/schema", func(w http.ResponseWriter, r *http.Request) {
		schemaChecked.Store(true)
		writeJSON(w, `{"isValid":true,"log":[]}`)
	})
	f := newFixture(t, mux)
	dir := f.repo(t, "brand", "banner")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"width":300}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.json"), []byte(`{}`), 0o644))

	require.NoError(t, f.app.Validate(context.Background(), ValidateOptions{Visual: "brand/banner"}))

	require.Contains(t, configBody, "outputCategory")
	assert.Nil(t, configBody["outputCategory"])
	assert.True(t, schemaChecked.Load())
	assert.Contains(t, f.out.String(), "Checking schema of brand/banner")
}

func TestValidateInvalidJSONSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, `{"isValid":true}`)
	}))
	broken := f.repo(t, "acme", "acme-spring-html-1")
	require.NoError(t, os.WriteFile(filepath.Join(broken, "config.json"), []byte(`{"width":`), 0o644))
	ok := f.repo(t, "acme", "acme-summer-image-2")
	require.NoError(t, os.WriteFile(filepath.Join(ok, "schema.json"), []byte(`{}`), 0o644))

	err := f.app.Validate(context.Background(), ValidateOptions{})
	assert.ErrorIs(t, err, ErrInvalidTemplates)
	assert.EqualValues(t, 1, calls.Load())
	assert.Contains(t, f.out.String(), "config.json is not valid JSON")
}

func TestValidateSingleVisual(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"isValid":true,"log":[]}`)
	}))
	f.repo(t, "acme", "acme-spring-html-1")
	other := f.repo(t, "acme", "acme-summer-image-2")
	require.NoError(t, os.WriteFile(filepath.Join(other, "config.json"), []byte(`{"width":`), 0o644))

	require.NoError(t, f.app.Validate(context.Background(), ValidateOptions{Visual: "acme/acme-spring-html-1"}))

	_, err := f.app.FindVisual("acme/missing")
	assert.Error(t, err)
}
