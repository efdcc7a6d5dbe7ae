package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-platform/courierbroker/core/model"
)

func TestMemoryDirectory_Eligibility(t *testing.T) {
	d := NewMemoryDirectory()
	d.PutProvider(model.Provider{ID: "p1", CompanyID: "c1", Active: true})
	d.PutProvider(model.Provider{ID: "p2", CompanyID: "c1", Active: false})
	d.PutProvider(model.Provider{ID: "p3", CompanyID: "c2", Active: true})
	d.PutProvider(model.Provider{ID: "p4", CompanyID: "c1", Active: true, Deleted: true})
	d.PutProvider(model.Provider{ID: "p5", CompanyID: "c1", Active: true, BranchID: "b2"})

	got, err := d.EligibleProviders(context.Background(), "c1", "b1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
}

func TestMemoryDirectory_RemoveProvider(t *testing.T) {
	d := NewMemoryDirectory()
	d.PutProvider(model.Provider{ID: "p1", CompanyID: "c1", Active: true})
	d.RemoveProvider("p1")
	got, err := d.EligibleProviders(context.Background(), "c1", "b1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryDirectory_Branch(t *testing.T) {
	d := NewMemoryDirectory()
	d.PutBranch(model.Branch{ID: "b1", CompanyID: "c1", Configured: true})

	b, err := d.Branch(context.Background(), "c1", "b1")
	require.NoError(t, err)
	assert.True(t, b.Configured)

	_, err = d.Branch(context.Background(), "c1", "b2")
	assert.Error(t, err)
}
