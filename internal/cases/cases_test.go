package cases

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/patientsim/internal/model"
)

func validCase() model.PatientCase {
	return model.PatientCase{
		ID:   "test-case",
		Name: "Test Patient",
		MustElicitFacts: []model.MustElicitFact{
			{ID: "a", Keywords: []string{"alpha"}, Label: "Alpha", Category: model.CategorySymptoms},
			{ID: "b", Keywords: []string{"beta"}, Label: "Beta", Category: model.CategorySocial},
		},
		QAScript: []model.QAPattern{
			{Patterns: []string{"alpha?"}, Response: "Yes.", Facts: []string{"a"}},
		},
	}
}

func TestBuiltin(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "mr-johnson", list[0].ID)
	assert.Equal(t, "ms-esposito", list[1].ID)

	c, err := reg.Get(DefaultCaseID)
	require.NoError(t, err)
	assert.Len(t, c.MustElicitFacts, 11)

	j, err := reg.Get("mr-johnson")
	require.NoError(t, err)
	assert.Len(t, j.MustElicitFacts, 10)
}

func TestGetUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("nobody")
	assert.ErrorIs(t, err, ErrUnknownCase)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *model.PatientCase)
		wantErr string
	}{
		{"valid", func(*model.PatientCase) {}, ""},
		{"missing id", func(c *model.PatientCase) { c.ID = " " }, "missing id"},
		{"no facts", func(c *model.PatientCase) { c.MustElicitFacts = nil; c.QAScript = nil }, "no must-elicit facts"},
		{"duplicate fact id", func(c *model.PatientCase) { c.MustElicitFacts[1].ID = "a" }, "duplicate id"},
		{"empty keywords", func(c *model.PatientCase) { c.MustElicitFacts[0].Keywords = nil }, "no keywords"},
		{"blank keywords", func(c *model.PatientCase) { c.MustElicitFacts[0].Keywords = []string{" ", ""} }, "no keywords"},
		{"bad category", func(c *model.PatientCase) { c.MustElicitFacts[0].Category = "vitals" }, "unknown category"},
		{"missing label", func(c *model.PatientCase) { c.MustElicitFacts[1].Label = "" }, "missing label"},
		{"qa without patterns", func(c *model.PatientCase) { c.QAScript[0].Patterns = nil }, "no patterns"},
		{"qa unknown fact", func(c *model.PatientCase) { c.QAScript[0].Facts = []string{"zeta"} }, `unknown fact "zeta"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCase()
			tt.mutate(&c)
			err := Validate(c)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	c := validCase()
	c.MustElicitFacts[0].Keywords = nil
	c.MustElicitFacts[1].Category = "misc"
	c.QAScript[0].Facts = []string{"missing"}

	err := Validate(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no keywords")
	assert.Contains(t, err.Error(), "unknown category")
	assert.Contains(t, err.Error(), "unknown fact")
}

func TestParseNormalizesKeywords(t *testing.T) {
	data := []byte(`{
		"id": "norm",
		"mustElicitFacts": [
			{"id": "f", "keywords": ["  FEVER ", "Chills"], "label": "Fever", "category": "symptoms"}
		]
	}`)
	c, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"fever", "chills"}, c.MustElicitFacts[0].Keywords)
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode case")
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{
		"id": "extra",
		"name": "Extra Patient",
		"mustElicitFacts": [{"id": "x", "keywords": ["x-ray"], "label": "X", "category": "history"}]
	}`), 0o644))

	reg, err := Builtin()
	require.NoError(t, err)
	require.NoError(t, reg.LoadFiles([]string{good}))

	c, err := reg.Get("extra")
	require.NoError(t, err)
	assert.Equal(t, "Extra Patient", c.Name)
	assert.Len(t, reg.List(), 3)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"id": "bad", "mustElicitFacts": []}`), 0o644))
	err = reg.LoadFiles([]string{bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")

	err = reg.LoadFiles([]string{filepath.Join(dir, "absent.json")})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseSchema(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing facts", `{"id": "x"}`},
		{"age as string", `{"id": "x", "age": "forty", "mustElicitFacts": [{"id": "f", "keywords": ["k"], "category": "history"}]}`},
		{"keyword not a string", `{"id": "x", "mustElicitFacts": [{"id": "f", "keywords": [7], "category": "history"}]}`},
		{"unknown category", `{"id": "x", "mustElicitFacts": [{"id": "f", "keywords": ["k"], "category": "vitals"}]}`},
		{"qa without patterns", `{"id": "x", "mustElicitFacts": [{"id": "f", "keywords": ["k"], "category": "history"}], "qaScript": [{"response": "hi"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "schema validation failed")
		})
	}
}

func TestParseSchemaAllowsExtraFields(t *testing.T) {
	c, err := Parse([]byte(`{
		"id": "extra-fields",
		"ward": "B",
		"mustElicitFacts": [{"id": "f", "keywords": ["k"], "label": "F", "category": "history", "source": "chart"}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "extra-fields", c.ID)
}
