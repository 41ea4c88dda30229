package assembly

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
)

func newTestObject(t *testing.T) (*Object, *registry.Registry) {
	t.Helper()
	reg := registry.NewRegistry()
	obj, err := New(reg, nil)
	require.NoError(t, err)
	return obj, reg
}

func TestSetAttributeSingleExactLengthWrites(t *testing.T) {
	obj, _ := newTestObject(t)
	buf := make([]byte, 4)
	inst, err := obj.AddInstance(100, buf, nil, nil)
	require.NoError(t, err)

	regInst, _ := obj.Class().Instance(100)
	err = registry.SetAttributeSingle(regInst, 3, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, inst.Bytes())
}

func TestSetAttributeSingleLengthMismatch(t *testing.T) {
	obj, _ := newTestObject(t)
	buf := make([]byte, 4)
	_, err := obj.AddInstance(100, buf, nil, nil)
	require.NoError(t, err)
	regInst, _ := obj.Class().Instance(100)

	err = registry.SetAttributeSingle(regInst, 3, []byte{1, 2})
	require.Equal(t, cip.Err(cip.StatusNotEnoughData), err)

	err = registry.SetAttributeSingle(regInst, 3, []byte{1, 2, 3, 4, 5})
	require.Equal(t, cip.Err(cip.StatusTooMuchData), err)
}

func TestSetAttributeSingleHookFailureDowngradesStatusButKeepsWrite(t *testing.T) {
	obj, _ := newTestObject(t)
	buf := make([]byte, 2)
	inst, err := obj.AddInstance(100, buf, nil, func(data []byte) error {
		return errors.New("application rejected data")
	})
	require.NoError(t, err)
	regInst, _ := obj.Class().Instance(100)

	err = registry.SetAttributeSingle(regInst, 3, []byte{9, 9})
	require.Equal(t, cip.Err(cip.StatusInvalidAttributeValue), err)
	require.Equal(t, []byte{9, 9}, inst.Bytes(), "write-through happens before hook validation (spec 9)")
}

func TestConnectedOutputRejectsExplicitWrite(t *testing.T) {
	obj, _ := newTestObject(t)
	inst, err := obj.AddInstance(100, make([]byte, 2), nil, nil)
	require.NoError(t, err)
	inst.MarkConnectedOutput(true)

	regInst, _ := obj.Class().Instance(100)
	err = registry.SetAttributeSingle(regInst, 3, []byte{1, 2})
	require.Equal(t, cip.Err(cip.StatusAttributeNotSettable), err)
}

func TestAttribute4IsPlainLengthNoHook(t *testing.T) {
	obj, _ := newTestObject(t)
	hookCalled := false
	_, err := obj.AddInstance(100, make([]byte, 10), func(data []byte) error {
		hookCalled = true
		return nil
	}, nil)
	require.NoError(t, err)
	regInst, _ := obj.Class().Instance(100)

	data, err := registry.GetAttributeSingle(regInst, 4, cip.GetableSingle)
	require.NoError(t, err)
	require.Equal(t, []byte{10, 0}, data)
	require.False(t, hookCalled, "attribute 4 read must not invoke before_assembly_data_send")
}

func TestBeforeSendHookFiresOnAttribute3Read(t *testing.T) {
	obj, _ := newTestObject(t)
	called := false
	_, err := obj.AddInstance(100, []byte{1, 2}, func(data []byte) error {
		called = true
		return nil
	}, nil)
	require.NoError(t, err)
	regInst, _ := obj.Class().Instance(100)

	_, err = registry.GetAttributeSingle(regInst, 3, cip.GetableSingle)
	require.NoError(t, err)
	require.True(t, called)
}
