//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package datamodel

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindContained(t *testing.T) {
	aas := newTestAAS()

	found, ok := FindContained(aas, "valid_aas_id")
	require.True(t, ok)
	assert.Same(t, aas, found)

	found, ok = FindContained(aas, "material_1")
	require.True(t, ok)
	assert.Same(t, aas.Submodel2.Material, found)

	_, ok = FindContained(aas, "missing")
	assert.False(t, ok)
}

func TestReplaceContained(t *testing.T) {
	aas := newTestAAS()
	replacement := &testSubmodel{IDShort: "example_submodel_id", FloatAttribute: 7.5}

	require.NoError(t, ReplaceContained(aas, "example_submodel_id", replacement))
	assert.Same(t, replacement, aas.Submodel)

	err := ReplaceContained(aas, "missing", replacement)
	require.ErrorIs(t, err, ErrModelNotFound)
}

func TestGetAndSetField(t *testing.T) {
	sm := &testSubmodel{IDShort: "sm", FloatAttribute: 1.0}

	value, err := GetField(sm, "FloatAttribute")
	require.NoError(t, err)
	assert.Equal(t, 1.0, value)

	require.NoError(t, SetField(sm, "FloatAttribute", 7.5))
	assert.Equal(t, 7.5, sm.FloatAttribute)

	// JSON-decoded numbers land on typed fields.
	require.NoError(t, SetField(sm, "FloatAttribute", any(float64(2.5))))
	assert.Equal(t, 2.5, sm.FloatAttribute)

	_, err = GetField(sm, "Missing")
	require.ErrorIs(t, err, ErrFieldNotFound)
	require.ErrorIs(t, SetField(sm, "Missing", 1), ErrFieldNotFound)
}

func TestSetFieldCoercesStructuredValues(t *testing.T) {
	sm2 := &testSubmodel2{IDShort: "sm2"}

	// A JSON object decodes onto the declared pointer field type.
	require.NoError(t, SetField(sm2, "Material", map[string]any{
		"id_short": "material_1",
		"value":    "steel",
	}))
	require.NotNil(t, sm2.Material)
	assert.Equal(t, "steel", sm2.Material.Value)

	require.NoError(t, SetField(sm2, "Material", nil))
	assert.Nil(t, sm2.Material)
}

func TestFields(t *testing.T) {
	fields := Fields(reflect.TypeOf(&testAAS{}))
	byName := map[string]FieldInfo{}
	for _, field := range fields {
		byName[field.Name] = field
	}

	sub := byName["Submodel"]
	assert.Equal(t, "example_submodel", sub.JSONName)
	assert.True(t, sub.Optional)
	assert.True(t, sub.Identifiable)
	assert.False(t, sub.Container)

	id := byName["ID"]
	assert.False(t, id.Optional)
	assert.False(t, id.Identifiable)

	elements := Fields(reflect.TypeOf(testSubmodel{}))
	for _, field := range elements {
		if field.Name == "Elements" {
			assert.True(t, field.Container)
			assert.True(t, field.Identifiable)
		}
	}
}

type testCertificate struct {
	IDShort  string `json:"id_short"`
	Document File   `json:"document"`
	Scan     Blob   `json:"scan"`
}

type testProduct struct {
	IDShort     string           `json:"id_short"`
	Certificate *testCertificate `json:"certificate"`
}

func TestContentPaths(t *testing.T) {
	paths := ContentPaths(reflect.TypeOf(&testProduct{}))
	require.Len(t, paths, 2)

	segments := map[string]bool{}
	for _, path := range paths {
		key := ""
		for _, segment := range path.Segments {
			key += "/" + segment
		}
		segments[key] = path.IsBlob
	}
	assert.Equal(t, map[string]bool{
		"/Certificate/Document": false,
		"/Certificate/Scan":     true,
	}, segments)
}

func TestNavigate(t *testing.T) {
	product := &testProduct{
		IDShort: "p_1",
		Certificate: &testCertificate{
			IDShort:  "cert_1",
			Document: File{Path: "http://example.com/cert.pdf", MediaType: "application/pdf"},
		},
	}

	value, err := Navigate(product, []string{"Certificate", "Document"})
	require.NoError(t, err)
	assert.Equal(t, File{Path: "http://example.com/cert.pdf", MediaType: "application/pdf"}, value)

	_, err = Navigate(product, []string{"Certificate", "Missing"})
	require.ErrorIs(t, err, ErrFieldNotFound)
}

func TestStripBlobContent(t *testing.T) {
	product := &testProduct{
		IDShort: "p_1",
		Certificate: &testCertificate{
			IDShort: "cert_1",
			Scan:    Blob{Content: []byte{1, 2, 3}, MediaType: "image/png"},
		},
	}

	stripped, err := StripBlobContent(product)
	require.NoError(t, err)

	shaped, ok := stripped.(map[string]any)
	require.True(t, ok)
	cert := shaped["certificate"].(map[string]any)
	scan := cert["scan"].(map[string]any)
	_, hasContent := scan["content"]
	assert.False(t, hasContent)
	assert.Equal(t, "image/png", scan["media_type"])
}
