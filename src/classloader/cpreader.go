/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

// ConstantPoolReader implements spec.md §4.7: parse a class file's
// constant pool byte slice and resolve a single index to a method
// reference's (name, descriptor) pair.
//
// Grounded on artipop-jacobin/classloader/CPutils.go's FetchCPentry and
// GetMethInfoFromCPmethref, which walk an already-parsed CPool struct
// to the same end (ClassRef -> Utf8Ref -> name string). This version
// parses the pool from a raw big-endian byte slice per spec.md §4.7
// instead of an already-materialized struct, since the interceptor only
// ever receives the pool as bytes from hostruntime.Runtime.
package classloader

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrPoolFormat is the single typed failure spec.md §4.7 requires:
// "Each yields a single typed failure 'pool format' that the caller
// interprets as 'skip this callsite permanently.'"
var ErrPoolFormat = errors.New("classloader: constant pool format error")

// MethodReference is the (name, descriptor) pair a Methodref or
// InterfaceMethodref index resolves to.
type MethodReference struct {
	Name       string
	Descriptor string
}

type poolEntry struct {
	tag  byte
	data []byte // the entry's payload, tag byte already consumed
}

// ConstantPoolReader parses a raw constant-pool byte slice on demand.
// It holds no state across calls; every Resolve call re-parses, which
// is deliberate: spec.md's callsite filter only resolves a given
// (method, bci) once and then memoizes the *classification*, not the
// parsed pool (see ExplicitCallSiteSet in src/callsite).
type ConstantPoolReader struct{}

// Resolve parses the whole pool sequentially from constant-pool index 1
// (index 0 is unused, per JVMS §4.4), then resolves the entry at index
// if it is a Methodref or InterfaceMethodref. The NameAndType and Utf8
// entries it refers to may sit at lower or higher indexes.
func (ConstantPoolReader) Resolve(pool []byte, index int) (MethodReference, error) {
	if index < 1 {
		return MethodReference{}, fmt.Errorf("%w: index %d out of range", ErrPoolFormat, index)
	}

	entries, err := parseEntries(pool, index)
	if err != nil {
		return MethodReference{}, err
	}
	if index >= len(entries) || entries[index] == nil {
		return MethodReference{}, fmt.Errorf("%w: index %d out of range", ErrPoolFormat, index)
	}

	e := entries[index]
	if e.tag != tagMethodref && e.tag != tagInterfaceMethodref {
		return MethodReference{}, fmt.Errorf("%w: index %d is not a method reference", ErrPoolFormat, index)
	}
	if len(e.data) < 4 {
		return MethodReference{}, fmt.Errorf("%w: truncated method ref at index %d", ErrPoolFormat, index)
	}
	// class_index is read but unused here: spec.md §4.7 only asks us
	// to resolve name_and_type_index to (name, descriptor).
	natIndex := int(binary.BigEndian.Uint16(e.data[2:4]))

	if natIndex < 0 || natIndex >= len(entries) || entries[natIndex] == nil {
		return MethodReference{}, fmt.Errorf("%w: name_and_type index %d invalid", ErrPoolFormat, natIndex)
	}
	nat := entries[natIndex]
	if nat.tag != tagNameAndType {
		return MethodReference{}, fmt.Errorf("%w: name_and_type index %d invalid", ErrPoolFormat, natIndex)
	}
	if len(nat.data) < 4 {
		return MethodReference{}, fmt.Errorf("%w: truncated name_and_type at index %d", ErrPoolFormat, natIndex)
	}
	nameIndex := int(binary.BigEndian.Uint16(nat.data[0:2]))
	descIndex := int(binary.BigEndian.Uint16(nat.data[2:4]))

	name, err := utf8At(entries, nameIndex)
	if err != nil {
		return MethodReference{}, err
	}
	desc, err := utf8At(entries, descIndex)
	if err != nil {
		return MethodReference{}, err
	}

	return MethodReference{Name: name, Descriptor: desc}, nil
}

func utf8At(entries []*poolEntry, index int) (string, error) {
	if index < 0 || index >= len(entries) || entries[index] == nil {
		return "", fmt.Errorf("%w: utf8 index %d out of range", ErrPoolFormat, index)
	}
	e := entries[index]
	if e.tag != tagUTF8 {
		return "", fmt.Errorf("%w: index %d is not a UTF8 entry", ErrPoolFormat, index)
	}
	return string(e.data), nil
}

// parseEntries walks pool sequentially to its end; upTo only sizes the
// initial slice. An entry cut short by the end of pool is a format
// error. Index 0 and the
// unused "second half" of Long/Double entries are left nil, per
// JVMS §4.4.5 ("the constant pool index is valid but is considered
// unusable").
func parseEntries(pool []byte, upTo int) ([]*poolEntry, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: empty constant pool", ErrPoolFormat)
	}

	// capacity grows lazily; a well-formed pool rarely needs more than
	// a few hundred slots for the entries a hook would ever reference.
	entries := make([]*poolEntry, 1, upTo+2)
	entries[0] = nil

	pos := 0
	for pos < len(pool) {
		tag := pool[pos]
		pos++

		size, extraSlot, err := entrySize(tag, pool[pos:])
		if err != nil {
			return nil, err
		}
		if pos+size > len(pool) {
			return nil, fmt.Errorf("%w: truncated constant pool entry", ErrPoolFormat)
		}

		entries = append(entries, &poolEntry{tag: tag, data: pool[pos : pos+size]})
		pos += size

		if extraSlot {
			entries = append(entries, nil)
		}
	}

	return entries, nil
}

// entrySize reports the payload size (tag byte already consumed) of a
// constant pool entry, and whether it consumes the following index
// slot too (Long and Double, per JVMS §4.4.5).
func entrySize(tag byte, rest []byte) (size int, extraSlot bool, err error) {
	switch tag {
	case tagUTF8:
		if len(rest) < 2 {
			return 0, false, fmt.Errorf("%w: truncated utf8 length", ErrPoolFormat)
		}
		return 2 + int(binary.BigEndian.Uint16(rest[0:2])), false, nil
	case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
		tagNameAndType, tagDynamic, tagInvokeDynamic:
		return 4, false, nil
	case tagLong, tagDouble:
		return 8, true, nil
	case tagClass, tagString, tagMethodType, tagModule, tagPackage:
		return 2, false, nil
	case tagMethodHandle:
		return 3, false, nil
	default:
		return 0, false, fmt.Errorf("%w: unknown constant pool tag %d", ErrPoolFormat, tag)
	}
}
