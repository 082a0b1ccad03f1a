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

// Fixture shaped like an asset administration shell: one top-level shell
// holding two submodels with nested elements.

type testElement struct {
	IDShort string `json:"id_short"`
	Value   string `json:"value"`
}

type testSubmodel struct {
	IDShort        string         `json:"id_short"`
	FloatAttribute float64        `json:"float_attribute"`
	Elements       []*testElement `json:"elements"`
}

type testSubmodel2 struct {
	IDShort  string       `json:"id_short"`
	Material *testElement `json:"material"`
	Backup   *testElement `json:"backup"`
}

type testAAS struct {
	ID        string         `json:"id"`
	Submodel  *testSubmodel  `json:"example_submodel"`
	Submodel2 *testSubmodel2 `json:"example_submodel_2"`
}

func newTestAAS() *testAAS {
	return &testAAS{
		ID: "valid_aas_id",
		Submodel: &testSubmodel{
			IDShort:        "example_submodel_id",
			FloatAttribute: 1.0,
			Elements: []*testElement{
				{IDShort: "element_1", Value: "a"},
				{IDShort: "element_2", Value: "b"},
				{IDShort: "element_3", Value: "c"},
				{IDShort: "element_4", Value: "d"},
			},
		},
		Submodel2: &testSubmodel2{
			IDShort:  "example_submodel_2_id",
			Material: &testElement{IDShort: "material_1", Value: "steel"},
			Backup:   &testElement{IDShort: "backup_1", Value: "aluminium"},
		},
	}
}

func TestIngestAndQuery(t *testing.T) {
	dm, err := FromModels(newTestAAS())
	require.NoError(t, err)

	assert.Len(t, dm.TopLevel(), 1)
	assert.Len(t, dm.Contained(), 8)

	referencing := dm.Referencing("example_submodel_id")
	require.Len(t, referencing, 1)
	aas, ok := referencing[0].(*testAAS)
	require.True(t, ok)
	assert.Equal(t, "valid_aas_id", aas.ID)
}

func TestGetReturnsIngestedEntity(t *testing.T) {
	aas := newTestAAS()
	dm, err := FromModels(aas)
	require.NoError(t, err)

	got, err := dm.Get("valid_aas_id")
	require.NoError(t, err)
	assert.Same(t, aas, got)

	sub, err := dm.Get("example_submodel_id")
	require.NoError(t, err)
	assert.Same(t, aas.Submodel, sub)

	_, err = dm.Get("missing")
	require.ErrorIs(t, err, ErrModelNotFound)
}

func TestDuplicateConflictRejected(t *testing.T) {
	first := &testSubmodel{IDShort: "example_submodel_id", FloatAttribute: 1.0}
	second := &testSubmodel{IDShort: "example_submodel_id", FloatAttribute: 2.0}

	dm := New()
	require.NoError(t, dm.Add(first))
	require.ErrorIs(t, dm.Add(second), ErrDuplicateID)
}

func TestEqualDuplicatesUnified(t *testing.T) {
	shared1 := &testElement{IDShort: "shared", Value: "x"}
	shared2 := &testElement{IDShort: "shared", Value: "x"}
	sm1 := &testSubmodel2{IDShort: "sm1", Material: shared1}
	sm2 := &testSubmodel2{IDShort: "sm2", Material: shared2}

	dm, err := FromModels(sm1, sm2)
	require.NoError(t, err)

	// The second instance was redirected onto the canonical one.
	assert.Same(t, sm1.Material, sm2.Material)
	assert.Len(t, dm.ModelsOfTypeName("testElement"), 1)
}

func TestAssociationEdgesResolve(t *testing.T) {
	dm, err := FromModels(newTestAAS())
	require.NoError(t, err)

	for _, edge := range dm.Edges() {
		if edge.Kind != Association {
			continue
		}
		assert.True(t, dm.Contains(edge.FromID), "from %q", edge.FromID)
		assert.True(t, dm.Contains(edge.ToID), "to %q", edge.ToID)
	}
}

// testCarrier has no identifier field, so ingesting it yields a synthetic
// root id. The inline element has no identifier either.
type testCarrier struct {
	Payload *testElement `json:"payload"`
	Inline  testElement  `json:"inline"`
}

func TestValueRootSyntheticEdgesResolve(t *testing.T) {
	dm := New()
	require.NoError(t, dm.Add(testCarrier{
		Payload: &testElement{IDShort: "payload_1", Value: "x"},
		Inline:  testElement{Value: "unnamed"},
	}))

	edges := dm.Edges()
	require.Len(t, edges, 2)
	for _, edge := range edges {
		assert.True(t, dm.Contains(edge.FromID), "from %q", edge.FromID)
		assert.True(t, dm.Contains(edge.ToID), "to %q", edge.ToID)
	}
	assert.Len(t, dm.TopLevel(), 1)
	assert.Len(t, dm.Contained(), 2)
}

func TestConflictingAddLeavesModelUnchanged(t *testing.T) {
	dm := New()
	require.NoError(t, dm.Add(&testElement{IDShort: "material_1", Value: "steel"}))

	conflicting := &testSubmodel2{
		IDShort:  "sm_new",
		Material: &testElement{IDShort: "material_1", Value: "carbon"},
	}
	require.ErrorIs(t, dm.Add(conflicting), ErrDuplicateID)

	// Nothing of the rejected model leaked into the indices.
	assert.False(t, dm.Contains("sm_new"))
	assert.Len(t, dm.TopLevel(), 1)
	assert.Empty(t, dm.Edges())
	assert.NotContains(t, dm.TypeNames(), "testSubmodel2")
}

type testRobot struct {
	IDShort    string `json:"id_short"`
	OperatorID string `json:"operator_id"`
}

func TestDanglingReferenceRetained(t *testing.T) {
	robot := &testRobot{IDShort: "robot_1", OperatorID: "ghost"}
	dm, err := FromModels(robot)
	require.NoError(t, err)

	assert.Contains(t, dm.Edges(), ReferenceInfo{FromID: "robot_1", ToID: "ghost", Kind: ReferenceByID})
	// The referrer resolves even though the target is absent.
	assert.Len(t, dm.Referencing("ghost"), 1)
	assert.Empty(t, dm.Referenced("robot_1"))
}

func TestRemoveRefusesReferencedEntity(t *testing.T) {
	dm, err := FromModels(newTestAAS())
	require.NoError(t, err)

	err = dm.Remove("example_submodel_id", false)
	require.ErrorIs(t, err, ErrStillReferenced)

	require.NoError(t, dm.Remove("example_submodel_id", true))
	assert.False(t, dm.Contains("example_submodel_id"))
	// Elements only held by the removed submodel are cleaned up.
	assert.False(t, dm.Contains("element_1"))
	assert.True(t, dm.Contains("example_submodel_2_id"))
}

func TestRemoveTopLevelCascades(t *testing.T) {
	dm, err := FromModels(newTestAAS())
	require.NoError(t, err)

	require.NoError(t, dm.Remove("valid_aas_id", true))
	assert.False(t, dm.Contains("valid_aas_id"))
	assert.False(t, dm.Contains("example_submodel_id"))
	assert.False(t, dm.Contains("material_1"))
	assert.Empty(t, dm.Edges())
}

func TestReindex(t *testing.T) {
	aas := newTestAAS()
	dm, err := FromModels(aas)
	require.NoError(t, err)

	aas.ID = "renamed_aas_id"
	require.NoError(t, dm.Reindex("valid_aas_id", "renamed_aas_id"))

	got, err := dm.Get("renamed_aas_id")
	require.NoError(t, err)
	assert.Same(t, aas, got)
	assert.False(t, dm.Contains("valid_aas_id"))

	referencing := dm.Referencing("example_submodel_id")
	require.Len(t, referencing, 1)
	assert.Same(t, aas, referencing[0])

	require.ErrorIs(t, dm.Reindex("missing", "x"), ErrModelNotFound)
	require.ErrorIs(t, dm.Reindex("renamed_aas_id", "example_submodel_id"), ErrDuplicateID)
}

type testNode struct {
	IDShort string    `json:"id_short"`
	Peer    *testNode `json:"peer"`
}

func TestCyclicGraphIngestion(t *testing.T) {
	a := &testNode{IDShort: "node_a"}
	b := &testNode{IDShort: "node_b", Peer: a}
	a.Peer = b

	dm, err := FromModels(a)
	require.NoError(t, err)

	assert.True(t, dm.Contains("node_a"))
	assert.True(t, dm.Contains("node_b"))
	assert.Contains(t, dm.Edges(), ReferenceInfo{FromID: "node_a", ToID: "node_b", Kind: Association})
	assert.Contains(t, dm.Edges(), ReferenceInfo{FromID: "node_b", ToID: "node_a", Kind: Association})
}

func TestTypeGraph(t *testing.T) {
	dm, err := FromModels(newTestAAS())
	require.NoError(t, err)

	assert.Equal(t, []string{"testAAS"}, dm.TopLevelTypeNames())
	assert.Contains(t, dm.TypeNames(), "testSubmodel")
	assert.Contains(t, dm.TypeNames(), "testElement")

	edges := dm.TypeEdges()
	assert.Contains(t, edges, ReferenceInfo{FromID: "testAAS", ToID: "testSubmodel", Kind: Attribute})
	assert.Contains(t, edges, ReferenceInfo{FromID: "testSubmodel", ToID: "testElement", Kind: Attribute})

	assert.Contains(t, dm.TypesReferencing("testElement"), "testSubmodel")
	assert.Contains(t, dm.TypesReferenced("testAAS"), "testSubmodel2")

	_, err = dm.TypeByName("unknown")
	require.ErrorIs(t, err, ErrTypeNotFound)
}

type testAttachment interface{ AttachmentName() string }

type testManual struct {
	IDShort string `json:"id_short"`
	Pages   int    `json:"pages"`
}

func (m *testManual) AttachmentName() string { return m.IDShort }

type testDatasheet struct {
	IDShort  string `json:"id_short"`
	Revision string `json:"revision"`
}

func (d *testDatasheet) AttachmentName() string { return d.IDShort }

type testComponent struct {
	ID         string         `json:"id"`
	Attachment testAttachment `json:"attachment,omitempty"`
}

func TestTypeGraphResolvesInterfaceVariants(t *testing.T) {
	// Holder first: variant edges complete as implementations register.
	dm, err := FromModelTypes(&testComponent{}, &testManual{}, &testDatasheet{})
	require.NoError(t, err)

	edges := dm.TypeEdges()
	assert.Contains(t, edges, ReferenceInfo{FromID: "testComponent", ToID: "testManual", Kind: Attribute})
	assert.Contains(t, edges, ReferenceInfo{FromID: "testComponent", ToID: "testDatasheet", Kind: Attribute})

	iface := reflect.TypeOf((*testAttachment)(nil)).Elem()
	variants := dm.TypesImplementing(iface)
	require.Len(t, variants, 2)
	assert.Equal(t, "testDatasheet", variants[0].Name())
	assert.Equal(t, "testManual", variants[1].Name())

	// Implementations first resolve the same way.
	dm2, err := FromModelTypes(&testManual{}, &testDatasheet{}, &testComponent{})
	require.NoError(t, err)
	assert.Contains(t, dm2.TypeEdges(), ReferenceInfo{FromID: "testComponent", ToID: "testManual", Kind: Attribute})
	assert.Contains(t, dm2.TypeEdges(), ReferenceInfo{FromID: "testComponent", ToID: "testDatasheet", Kind: Attribute})
}

func TestFromModelTypes(t *testing.T) {
	dm, err := FromModelTypes(&testAAS{})
	require.NoError(t, err)
	assert.Equal(t, []string{"testAAS"}, dm.TopLevelTypeNames())
	assert.Empty(t, dm.TopLevel())
}
