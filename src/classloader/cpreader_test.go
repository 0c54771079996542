/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package classloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPool assembles a minimal constant pool containing, at index 1,
// a Methodref pointing at a NameAndType (index 2) and a Class (index
// 4, unused by Resolve but present for realism), with UTF8 entries for
// name and descriptor at indices 3 and 5.
//
//	1: Methodref    { class_index=4, name_and_type_index=2 }
//	2: NameAndType  { name_index=3, descriptor_index=5 }
//	3: Utf8 "loadClass"
//	4: Class        { name_index=6 }
//	5: Utf8 "(Ljava/lang/String;)Ljava/lang/Class;"
//	6: Utf8 "java/lang/ClassLoader"
func buildPool() []byte {
	var b []byte
	putU8 := func(v byte) { b = append(b, v) }
	putU16 := func(v uint16) { b = append(b, byte(v>>8), byte(v)) }
	putUTF8 := func(s string) {
		putU8(tagUTF8)
		putU16(uint16(len(s)))
		b = append(b, s...)
	}

	// index 1: Methodref
	putU8(tagMethodref)
	putU16(4) // class_index
	putU16(2) // name_and_type_index

	// index 2: NameAndType
	putU8(tagNameAndType)
	putU16(3) // name_index
	putU16(5) // descriptor_index

	// index 3: Utf8 name
	putUTF8("loadClass")

	// index 4: Class
	putU8(tagClass)
	putU16(6)

	// index 5: Utf8 descriptor
	putUTF8("(Ljava/lang/String;)Ljava/lang/Class;")

	// index 6: Utf8 class name
	putUTF8("java/lang/ClassLoader")

	return b
}

func TestConstantPoolReader_ResolvesMethodref(t *testing.T) {
	r := ConstantPoolReader{}
	ref, err := r.Resolve(buildPool(), 1)
	require.NoError(t, err)
	assert.Equal(t, "loadClass", ref.Name)
	assert.Equal(t, "(Ljava/lang/String;)Ljava/lang/Class;", ref.Descriptor)
}

func TestConstantPoolReader_InterfaceMethodrefAlsoResolves(t *testing.T) {
	pool := buildPool()
	pool[0] = tagInterfaceMethodref // overwrite index 1's tag
	r := ConstantPoolReader{}
	ref, err := r.Resolve(pool, 1)
	require.NoError(t, err)
	assert.Equal(t, "loadClass", ref.Name)
}

func TestConstantPoolReader_NonMethodRefAtTarget(t *testing.T) {
	r := ConstantPoolReader{}
	_, err := r.Resolve(buildPool(), 2) // NameAndType, not a method ref
	assert.ErrorIs(t, err, ErrPoolFormat)
}

func TestConstantPoolReader_IndexOutOfRange(t *testing.T) {
	r := ConstantPoolReader{}
	_, err := r.Resolve(buildPool(), 99)
	assert.ErrorIs(t, err, ErrPoolFormat)

	_, err = r.Resolve(buildPool(), 0)
	assert.ErrorIs(t, err, ErrPoolFormat)
}

func TestConstantPoolReader_TruncatedSlice(t *testing.T) {
	r := ConstantPoolReader{}
	pool := buildPool()
	_, err := r.Resolve(pool[:3], 1)
	assert.ErrorIs(t, err, ErrPoolFormat)
}

func TestConstantPoolReader_UnknownTag(t *testing.T) {
	r := ConstantPoolReader{}
	pool := []byte{0xff, 0, 0, 0, 0}
	_, err := r.Resolve(pool, 1)
	assert.ErrorIs(t, err, ErrPoolFormat)
}

func TestConstantPoolReader_EmptyPool(t *testing.T) {
	r := ConstantPoolReader{}
	_, err := r.Resolve(nil, 1)
	assert.ErrorIs(t, err, ErrPoolFormat)
}

func TestConstantPoolReader_LongDoubleConsumeTwoSlots(t *testing.T) {
	// index 1: Long (occupies 1 and 2), index 3: Utf8 "x"
	var b []byte
	b = append(b, tagLong)
	b = append(b, 0, 0, 0, 0, 0, 0, 0, 1) // value = 1
	b = append(b, tagUTF8, 0, 1, 'x')

	r := ConstantPoolReader{}
	// index 2 is the unusable second half of the Long; resolving it
	// must fail, not silently read past the boundary.
	_, err := r.Resolve(b, 2)
	assert.ErrorIs(t, err, ErrPoolFormat)

	_, err = r.Resolve(b, 3) // a Utf8, not a method ref -- still a format error for Resolve's purposes
	assert.ErrorIs(t, err, ErrPoolFormat)
}
