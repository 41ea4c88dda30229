package registry

import (
	"testing"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/stretchr/testify/require"
)

func TestRegisterClassUniqueness(t *testing.T) {
	r := NewRegistry()

	c, err := r.RegisterClass(cip.ClassIdentity, "Identity", 1, 0, 0)
	require.NoError(t, err)
	require.Equal(t, cip.ClassIdentity, c.ID)

	got, ok := r.Class(cip.ClassIdentity)
	require.True(t, ok)
	require.Equal(t, c.ID, got.ID)

	_, err = r.RegisterClass(cip.ClassIdentity, "Identity", 1, 0, 0)
	require.Error(t, err, "registering the same class ID twice must fail")
}

func TestInstanceZeroIsClassObject(t *testing.T) {
	r := NewRegistry()
	c, err := r.RegisterClass(cip.ClassIdentity, "Identity", 1, 0, 0)
	require.NoError(t, err)

	inst := c.AddInstance(1)
	require.Equal(t, uint32(1), inst.ID)

	got, ok := c.Instance(1)
	require.True(t, ok)
	require.Same(t, inst, got)

	classObj, ok := c.Instance(0)
	require.True(t, ok)
	require.Same(t, c.ClassInstance(), classObj)
}

func TestAddInstanceIdempotent(t *testing.T) {
	r := NewRegistry()
	c, _ := r.RegisterClass(cip.ClassAssembly, "Assembly", 1, 0, 0)

	a := c.AddInstance(100)
	b := c.AddInstance(100)
	require.Same(t, a, b, "add_instance must be idempotent per ID")
}

func TestGetAttributeSingleMaskGating(t *testing.T) {
	r := NewRegistry()
	c, _ := r.RegisterClass(cip.ClassIdentity, "Identity", 1, 0, 0b10)
	inst := c.AddInstance(1)

	var vendor cip.UINT = 42
	require.NoError(t, inst.InsertAttribute(&AttributeDescriptor{
		Number: 1,
		Type:   cip.TypeUINT,
		Flags:  cip.GetableSingle,
		Get:    GetUINT(&vendor),
	}))

	data, err := GetAttributeSingle(inst, 1, cip.GetableSingle)
	require.NoError(t, err)
	require.Equal(t, []byte{42, 0}, data)

	_, err = GetAttributeSingle(inst, 1, cip.GetableAll)
	require.Error(t, err, "attribute not flagged GetableAll must be rejected when called as part of GetAttributeAll")
}

func TestGetAttributeAllOrderAndMask(t *testing.T) {
	r := NewRegistry()
	// bit 1 and bit 2 set: attributes 1 and 2 participate in GetAttributeAll.
	c, _ := r.RegisterClass(cip.ClassIdentity, "Identity", 1, 0, 0b0110)
	inst := c.AddInstance(1)

	var a1, a2, a3 cip.UINT = 1, 2, 3
	for _, a := range []struct {
		num cip.UINT
		v   *cip.UINT
	}{{1, &a1}, {2, &a2}, {3, &a3}} {
		require.NoError(t, inst.InsertAttribute(&AttributeDescriptor{
			Number: a.num, Type: cip.TypeUINT, Flags: cip.GetableSingleAll, Get: GetUINT(a.v),
		}))
	}

	out, err := GetAttributeAll(inst)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 2, 0}, out, "attribute 3 is not in the mask and must be skipped")
}

func TestSetAttributeSingleRejectsUnflagged(t *testing.T) {
	r := NewRegistry()
	c, _ := r.RegisterClass(cip.ClassAssembly, "Assembly", 1, 0, 0)
	inst := c.AddInstance(1)

	var v cip.UINT
	require.NoError(t, inst.InsertAttribute(&AttributeDescriptor{
		Number: 1, Type: cip.TypeUINT, Flags: cip.GetableSingle, Get: GetUINT(&v),
	}))

	err := SetAttributeSingle(inst, 1, []byte{1, 0})
	require.Error(t, err)
	cerr, ok := err.(cip.Error)
	require.True(t, ok)
	require.Equal(t, cip.StatusAttributeNotSettable, cerr.Status)
}
