/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package classloader

// Constant pool tag values, per the JVM class file format (JVMS §4.4).
// Named the way artipop-jacobin/classloader/classloader.go names its
// own constant-pool entry kinds (ClassRef, MethodRef, ...), generalized
// here to the raw tag byte rather than an already-parsed entry kind.
const (
	tagUTF8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// invokevirtual's opcode, per JVMS §6.5. BytecodeCallsiteFilter
// (spec.md §4.5) requires the byte at the recorded bci to be exactly
// this, the way artipop-jacobin/classloader/codeCheck_test.go checks
// specific opcode bytes (0x00 NOP, 0xB1 RETURN) against a code array.
const OpInvokeVirtual = 0xb6
